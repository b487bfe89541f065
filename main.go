// Command fusion runs the sensor fusion pipeline: it reads measurements
// from a recorded log, a UDP gateway, a serial port, or a pcap capture,
// feeds them through the unscented Kalman filter, records every estimate
// in sqlite, and serves the monitoring HTTP interface.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/fusion.report/internal/config"
	"github.com/banshee-data/fusion.report/internal/db"
	"github.com/banshee-data/fusion.report/internal/fusion"
	"github.com/banshee-data/fusion.report/internal/monitor"
	"github.com/banshee-data/fusion.report/internal/sensor"
)

var (
	listen        = flag.String("listen", ":8080", "HTTP listen address for the monitor")
	dbFile        = flag.String("db", "fusion.db", "Path to the SQLite database file")
	migrationsDir = flag.String("migrations", "migrations", "Directory holding schema migrations")
	tuningFile    = flag.String("tuning", "", "Optional JSON tuning config overriding filter defaults")

	logFile = flag.String("log", "", "Replay measurements from a log file")
	paced   = flag.Bool("paced", false, "Pace log replay by recorded timestamp gaps")
	speedup = flag.Float64("speedup", 1.0, "Replay speed multiplier when paced")

	udpListen  = flag.String("udp-listen", "", "Listen for measurement datagrams on this UDP address (e.g. :2368)")
	rcvBuf     = flag.Int("rcvbuf", 1<<20, "UDP receive buffer size in bytes")
	serialPort = flag.String("serial", "", "Read measurements from this serial port")
	pcapFile   = flag.String("pcap", "", "Replay measurements from a pcap capture (requires pcap build tag)")
	pcapPort   = flag.Int("pcap-port", 2368, "UDP port to extract from the pcap capture")
)

func main() {
	flag.Parse()

	sources := 0
	for _, s := range []string{*logFile, *udpListen, *serialPort, *pcapFile} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		log.Fatal("exactly one of -log, -udp-listen, -serial, or -pcap is required")
	}

	filterCfg := fusion.DefaultFilterConfig()
	if *tuningFile != "" {
		tuning, err := config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("load tuning config: %v", err)
		}
		filterCfg = tuning.Apply(filterCfg)
	}

	filter, err := fusion.NewFilter(filterCfg)
	if err != nil {
		log.Fatalf("create filter: %v", err)
	}

	d, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer d.Close()

	if _, err := os.Stat(*migrationsDir); err == nil {
		if err := d.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
	}

	runID, err := d.CreateRun(sourceDescription())
	if err != nil {
		log.Fatalf("create run: %v", err)
	}
	log.Printf("recording run %s", runID)

	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address: *listen,
		DB:      d,
		RunID:   runID,
	})

	// handle runs on the source goroutine, so the filter stays
	// single-writer. Parse or filter rejections are logged and skipped;
	// everything else aborts the run.
	handle := func(m sensor.Measurement) error {
		if err := filter.ProcessMeasurement(m); err != nil {
			log.Printf("measurement rejected: %v", err)
			return nil
		}
		if !filter.Initialized() {
			return nil
		}

		est := estimateFrom(filter, runID, m)
		if err := d.RecordEstimate(est); err != nil {
			return err
		}

		ws.PublishState(monitor.StateSnapshot{
			Micros:     m.Micros,
			SensorType: string(m.Type),
			PosX:       est.PosX,
			PosY:       est.PosY,
			Speed:      est.Speed,
			Heading:    est.Heading,
			TurnRate:   est.TurnRate,
			NIS:        est.NIS,
		})
		return nil
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// measurement source goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runSource(ctx, handle); err != nil && err != context.Canceled {
			log.Printf("source terminated: %v", err)
		}
		log.Print("source routine terminated")
	}()

	// HTTP monitor goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("monitor server error: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// runSource drives whichever measurement source was selected on the
// command line until it is exhausted or the context is cancelled.
func runSource(ctx context.Context, handle sensor.Handler) error {
	switch {
	case *logFile != "":
		f, err := os.Open(*logFile)
		if err != nil {
			return err
		}
		measurements, err := sensor.ParseLog(f)
		f.Close()
		if err != nil {
			return err
		}
		replay := &sensor.Replay{
			Measurements: measurements,
			Speedup:      *speedup,
			Paced:        *paced,
		}
		return replay.Run(ctx, handle)

	case *udpListen != "":
		listener := sensor.NewUDPListener(sensor.UDPListenerConfig{
			Address: *udpListen,
			RcvBuf:  *rcvBuf,
			Handler: handle,
		})
		return listener.Start(ctx)

	case *serialPort != "":
		src, err := sensor.NewSerialSource(*serialPort)
		if err != nil {
			return err
		}
		defer src.Close()
		return src.Monitor(ctx, handle)

	default:
		return sensor.ReadPCAPFile(ctx, *pcapFile, *pcapPort, handle)
	}
}

func sourceDescription() string {
	switch {
	case *logFile != "":
		return "log:" + *logFile
	case *udpListen != "":
		return "udp:" + *udpListen
	case *serialPort != "":
		return "serial:" + *serialPort
	default:
		return "pcap:" + *pcapFile
	}
}

// estimateFrom snapshots the filter belief after an accepted measurement.
func estimateFrom(f *fusion.Filter, runID string, m sensor.Measurement) *db.Estimate {
	x, y := f.Position()
	cov := f.Covariance()
	nis, _ := f.LastNIS(m.Type)

	return &db.Estimate{
		RunID:      runID,
		SensorType: m.Type,
		Micros:     m.Micros,

		PosX:     x,
		PosY:     y,
		Speed:    f.Speed(),
		Heading:  f.Heading(),
		TurnRate: f.TurnRate(),

		VarPosX:     cov.At(0, 0),
		VarPosY:     cov.At(1, 1),
		VarSpeed:    cov.At(2, 2),
		VarHeading:  cov.At(3, 3),
		VarTurnRate: cov.At(4, 4),

		NIS: nis,
	}
}
