package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nyiyui.ca/hato/senro/config"
	"nyiyui.ca/hato/senro/journal"
	"nyiyui.ca/hato/senro/kujo"
	"nyiyui.ca/hato/senro/sim"
	"nyiyui.ca/hato/senro/ui"
)

func main() {
	defer zap.S().Sync()
	level := zap.LevelFlag("log-level", zap.InfoLevel, "set log level")
	networkPath := flag.String("network", "data/example.json", "path to network description (JSON, or YAML if .yaml/.yml)")
	dt := flag.Float64("dt", 0.1, "simulated time per step")
	interval := flag.Duration("interval", 100*time.Millisecond, "wall time between steps (0 for as fast as possible)")
	steps := flag.Int("steps", 0, "steps to run (0 to run until interrupted)")
	listen := flag.String("listen", "", "address to serve kujo on (e.g. 0.0.0.0:8001)")
	allowOrigin := flag.String("allow-origin", "", "comma-separated origins besides kujo's own that may use kujo from a browser (* for any)")
	journalPath := flag.String("journal", journal.Memory, "path to step journal")
	tui := flag.Bool("tui", false, "show terminal dashboard")
	stopOnConflict := flag.Bool("stop-on-conflict", false, "stop at the first derailment or collision")
	flag.Parse()
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(*level)
	if *tui {
		// the dashboard owns the terminal
		cfg.OutputPaths = []string{"senro.log"}
	}
	dev, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(dev)

	n, err := config.Load(*networkPath)
	if err != nil {
		zap.S().Fatalf("load network: %s", err)
	}
	system, err := n.System()
	if err != nil {
		zap.S().Fatalf("network %s: %s", *networkPath, err)
	}
	j, err := journal.Open(*journalPath, uuid.New())
	if err != nil {
		zap.S().Fatalf("journal: %s", err)
	}
	defer j.Close()
	s := sim.New(*networkPath, sim.Conf{System: system, Journal: j})
	zap.S().Infow("loaded", "network", *networkPath, "run", s.ID(), "trains", len(system.Trains()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go s.LogEvents(ctx)

	if *listen != "" {
		zap.S().Infof("starting kujo on %s…", *listen)
		var origins []string
		if *allowOrigin != "" {
			origins = strings.Split(*allowOrigin, ",")
		}
		k := kujo.NewServer(s, kujo.Conf{AllowedOrigins: origins})
		defer k.Close()
		go func() {
			err := http.ListenAndServe(*listen, k.Handler())
			zap.S().Fatalf("kujo: %s", err)
		}()
	}

	if *tui {
		go func() {
			err := ui.Main(ctx, s)
			if err != nil {
				zap.S().Errorf("ui: %s", err)
			}
			cancel()
		}()
	}

	zap.S().Infof("starting simulation…")
	err = s.Run(ctx, sim.RunConf{
		Dt:             *dt,
		Interval:       *interval,
		Steps:          *steps,
		StopOnConflict: *stopOnConflict,
	})
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		zap.S().Infof("interrupted")
	case sim.IsConflict(err):
		zap.S().Errorf("stopped: %s", err)
		final := s.Snapshot(1)
		for _, t := range final.Trains {
			zap.S().Infow("train", "tag", t.Tag, "history", t.History, "head_distance", t.HeadDistance)
		}
		j.Close()
		os.Exit(1)
	default:
		zap.S().Fatalf("simulation: %s", err)
	}
	zap.S().Infow("done", "steps", s.Snapshot(1).Steps)
}
