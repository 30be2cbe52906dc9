package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/milosgajdos/go-localize/config"
	"github.com/milosgajdos/go-localize/landmark"
	"github.com/milosgajdos/go-localize/sim"
	"github.com/milosgajdos/go-localize/stream"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot/vg"
)

//go:embed map_data.txt
var defaultMap []byte

var (
	configPath = flag.String("config", "", "path to YAML config file; empty uses built-in defaults")
	mapPath    = flag.String("map", "", "path to landmark map (.csv with id,x,y header or tab separated .txt); empty uses built-in map")
	steps      = flag.Int("steps", -1, "number of simulation steps; negative uses the configured value")
	outPath    = flag.String("out", "", "path to CSV trace output")
	plotPath   = flag.String("plot", "", "path to PNG plot output")
	listen     = flag.String("listen", "", "address to stream estimates on, e.g. :8080; overrides the configured value")
	seed       = flag.Uint64("seed", 0, "filter seed; 0 uses the configured value")
	dumpPath   = flag.String("dump-config", "", "path to write the effective config to")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	if *seed != 0 {
		cfg.Filter.Seed = *seed
	}
	if *steps >= 0 {
		cfg.Vehicle.Steps = *steps
	}
	if *listen != "" {
		cfg.Stream.Listen = *listen
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		slog.Error("invalid log level", "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *dumpPath != "" {
		if err := cfg.WriteYAML(*dumpPath); err != nil {
			logger.Error("failed to write config", "err", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("localization failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	m, err := loadMap(*mapPath)
	if err != nil {
		return err
	}
	logger.Info("loaded map", "landmarks", m.Len())

	var (
		hub  *stream.Hub
		pace time.Duration
		errc = make(chan error, 1)
	)
	sctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if cfg.Stream.Listen != "" {
		hub = stream.NewHub(cfg.Stream.Buffer, logger)
		srv := stream.NewServer(cfg.Stream.Listen, hub)
		go func() {
			err := srv.Start(sctx)
			if err != nil {
				// stops the session on listener failure
				cancel(fmt.Errorf("stream server: %w", err))
			}
			errc <- err
		}()
		// viewers watch the session in real time
		pace = time.Duration(cfg.Sensor.DT * float64(time.Second))
	}

	tr, err := newTrace(*outPath)
	if err != nil {
		return err
	}
	defer tr.Close()

	s, err := newSession(cfg, m, hub, tr, logger)
	if err != nil {
		return err
	}

	recs, err := s.run(sctx, cfg.Vehicle.Steps, pace)
	if cause := context.Cause(sctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if len(recs) > 0 {
		last := recs[len(recs)-1]
		logger.Info("localization finished", "steps", len(recs), "error", last.Error, "yaw_error", last.YawError)
	}

	if err := tr.Close(); err != nil {
		return fmt.Errorf("closing trace file: %w", err)
	}

	if *plotPath != "" {
		if err := savePlot(*plotPath, recs, m); err != nil {
			return err
		}
	}

	if hub != nil && ctx.Err() == nil {
		logger.Info("session finished: streaming until interrupted")
		select {
		case <-ctx.Done():
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("stream server: %w", err)
			}
		}
	}

	return nil
}

// loadMap loads landmark map from path or the built-in map if path is empty
func loadMap(path string) (*landmark.Map, error) {
	if path == "" {
		return landmark.ReadTxt(bytes.NewReader(defaultMap))
	}

	return landmark.Load(path)
}

// savePlot plots ground truth and estimated trajectories of session records to PNG file at path
func savePlot(path string, recs []record, m *landmark.Map) error {
	if len(recs) == 0 {
		return fmt.Errorf("no steps to plot")
	}

	truth := mat.NewDense(len(recs), 2, nil)
	filter := mat.NewDense(len(recs), 2, nil)
	for i, r := range recs {
		truth.SetRow(i, []float64{r.TruthX, r.TruthY})
		filter.SetRow(i, []float64{r.X, r.Y})
	}

	plt, err := sim.New2DPlot(truth, filter, m)
	if err != nil {
		return fmt.Errorf("failed to make plot: %w", err)
	}

	// Save the plot to a PNG file.
	if err := plt.Save(10*vg.Inch, 10*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot to %s: %w", path, err)
	}

	return nil
}
