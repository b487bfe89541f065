// Package main provides a NIS consistency plotting tool for fusion runs.
// It reads the recorded innovation statistics for a run and renders one
// PNG per sensor type with the 95% chi-square threshold overlaid, which is
// the quickest way to judge whether the process noise is tuned sensibly.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/fusion.report/internal/db"
	"github.com/banshee-data/fusion.report/internal/sensor"
)

func main() {
	dbPath := flag.String("db", "fusion.db", "path to the estimate database")
	runID := flag.String("run", "", "run to plot (defaults to the latest run)")
	outputDir := flag.String("output-dir", ".", "directory to write PNG files into")
	flag.Parse()

	d, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer d.Close()

	run := *runID
	if run == "" {
		run, err = d.LatestRunID()
		if err != nil {
			log.Fatalf("find latest run: %v", err)
		}
		if run == "" {
			log.Fatal("no fusion runs recorded")
		}
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatalf("create output directory: %v", err)
	}

	plotted := 0
	for _, sensorType := range []sensor.Type{sensor.Direct, sensor.RangeBearing} {
		_, nis, err := d.NISSeries(run, sensorType)
		if err != nil {
			log.Fatalf("read NIS series for %s: %v", sensorType, err)
		}
		if len(nis) == 0 {
			log.Printf("no %s updates in run %s, skipping", sensorType, run)
			continue
		}

		outFile := filepath.Join(*outputDir, fmt.Sprintf("nis_%s.png", sensorType))
		if err := plotSeries(outFile, run, sensorType, nis); err != nil {
			log.Fatalf("plot %s: %v", sensorType, err)
		}
		over := 0
		limit := sensorType.ChiSquare95()
		for _, v := range nis {
			if v > limit {
				over++
			}
		}
		log.Printf("wrote %s (%d updates, %.1f%% above 95%% line)",
			outFile, len(nis), 100*float64(over)/float64(len(nis)))
		plotted++
	}

	if plotted == 0 {
		log.Fatalf("run %s has no recorded updates", run)
	}
}

// plotSeries renders one sensor's NIS sequence with the chi-square
// reference line.
func plotSeries(outFile, run string, t sensor.Type, nis []float64) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("NIS (%s) - run %s", t, run)
	p.X.Label.Text = "Update"
	p.Y.Label.Text = "NIS"

	pts := make(plotter.XYs, len(nis))
	for i, v := range nis {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}

	nisLine, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	nisLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	nisLine.Width = vg.Points(1)
	p.Add(nisLine)
	p.Legend.Add("NIS", nisLine)

	limit := t.ChiSquare95()
	refPts := plotter.XYs{
		{X: 0, Y: limit},
		{X: float64(len(nis) - 1), Y: limit},
	}
	refLine, err := plotter.NewLine(refPts)
	if err != nil {
		return err
	}
	refLine.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	refLine.Width = vg.Points(1)
	refLine.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(refLine)
	p.Legend.Add("95% chi-square", refLine)

	p.Legend.Top = true

	return p.Save(14*vg.Inch, 6*vg.Inch, outFile)
}
