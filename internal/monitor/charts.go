package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/fusion.report/internal/sensor"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleTrajectoryChart renders a quick XY plot (HTML) of a run's estimated
// trajectory using go-echarts, coloured by speed. This is a debugging-only
// endpoint (no auth) to eyeball a run without exporting the database.
// Query params:
//   - run_id (optional; same defaulting as the JSON APIs)
//   - max_points (optional; default 5000) to reduce payload size
func (ws *WebServer) handleTrajectoryChart(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no database configured for chart lookup")
		return
	}

	runID, err := ws.resolveRunID(r)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runID == "" {
		ws.writeJSONError(w, http.StatusNotFound, "no fusion runs recorded")
		return
	}

	maxPoints := 5000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	estimates, err := ws.db.GetEstimates(runID, 0)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get estimates: %v", err))
		return
	}
	if len(estimates) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no estimates recorded for run")
		return
	}

	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(estimates) > maxPoints {
		stride = int(math.Ceil(float64(len(estimates)) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, len(estimates)/stride+1)
	maxAbs := 0.0
	maxSpeed := 0.0
	for i := 0; i < len(estimates); i += stride {
		e := estimates[i]
		if math.Abs(e.PosX) > maxAbs {
			maxAbs = math.Abs(e.PosX)
		}
		if math.Abs(e.PosY) > maxAbs {
			maxAbs = math.Abs(e.PosY)
		}
		if e.Speed > maxSpeed {
			maxSpeed = e.Speed
		}
		data = append(data, opts.ScatterData{Value: []interface{}{e.PosX, e.PosY, e.Speed}})
	}

	// Add a small padding so points at the edges are visible
	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}
	if maxSpeed == 0 {
		maxSpeed = 1
	}

	// Force a square plot by using equal width/height and symmetric axis ranges
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Fused Trajectory", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Fused Trajectory", Subtitle: fmt.Sprintf("run=%s points=%d stride=%d", runID, len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxSpeed),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)

	scatter.AddSeries("trajectory", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleNISChart renders the innovation consistency series for both sensor
// types as a line chart, with the 95% chi-square threshold drawn alongside
// each series so tuning problems stand out.
// Query params:
//   - run_id (optional; same defaulting as the JSON APIs)
func (ws *WebServer) handleNISChart(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusInternalServerError, "no database configured for chart lookup")
		return
	}

	runID, err := ws.resolveRunID(r)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runID == "" {
		ws.writeJSONError(w, http.StatusNotFound, "no fusion runs recorded")
		return
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "NIS Consistency", Theme: "dark", Width: "1200px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "NIS Consistency", Subtitle: fmt.Sprintf("run=%s", runID)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "update"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "NIS"}),
	)

	haveSeries := false
	maxLen := 0
	for _, sensorType := range []sensor.Type{sensor.Direct, sensor.RangeBearing} {
		_, nis, err := ws.db.NISSeries(runID, sensorType)
		if err != nil {
			ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get NIS series: %v", err))
			return
		}
		if len(nis) == 0 {
			continue
		}
		haveSeries = true
		if len(nis) > maxLen {
			maxLen = len(nis)
		}

		series := make([]opts.LineData, 0, len(nis))
		for _, v := range nis {
			series = append(series, opts.LineData{Value: v})
		}
		line.AddSeries(string(sensorType), series)

		threshold := sensorType.ChiSquare95()
		ref := make([]opts.LineData, 0, len(nis))
		for range nis {
			ref = append(ref, opts.LineData{Value: threshold})
		}
		line.AddSeries(fmt.Sprintf("%s 95%%", sensorType), ref)
	}

	if !haveSeries {
		ws.writeJSONError(w, http.StatusNotFound, "no estimates recorded for run")
		return
	}

	x := make([]int, maxLen)
	for i := range x {
		x[i] = i
	}
	line.SetXAxis(x)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
