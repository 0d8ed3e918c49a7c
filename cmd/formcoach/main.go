package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/claude/formcoach/internal/coach"
	"github.com/claude/formcoach/internal/config"
	"github.com/claude/formcoach/internal/logging"
	"github.com/claude/formcoach/internal/models"
	"github.com/claude/formcoach/internal/pose"
	"github.com/claude/formcoach/internal/session"
	"github.com/claude/formcoach/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	envFile := flag.String("env", ".env", "optional .env file with FORMCOACH_ overrides")
	exerciseName := flag.String("exercise", "squat", "exercise: squat, shoulder_abduction or pullup")
	input := flag.String("input", "", "JSON-lines pose recording; empty runs the built-in demo poses")
	demoFrames := flag.Int("demo-frames", 40, "number of samples the demo source yields")
	interval := flag.Duration("interval", 0, "sampling interval; 0 processes samples as fast as they arrive")
	patientID := flag.String("patient", "demo-patient", "patient identifier stored with the session")
	notes := flag.String("notes", "", "session notes")
	localOnly := flag.Bool("local", false, "keep the session in the local SQLite store only")
	noSave := flag.Bool("no-save", false, "analyze without storing the session")
	printJSON := flag.Bool("json", false, "print the finished session as JSON")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	boot := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		boot.Warn("failed to load env file", "path", *envFile, "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log, closeLog, err := logging.New(logging.Params{
		Level:      cfg.Log.Level,
		JSON:       cfg.Log.Format == "json",
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}, os.Stderr)
	if err != nil {
		boot.Error("failed to set up logging", "error", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, log, options{
		exercise:    *exerciseName,
		input:       *input,
		demoFrames:  *demoFrames,
		interval:    *interval,
		patientID:   *patientID,
		notes:       *notes,
		localOnly:   *localOnly,
		noSave:      *noSave,
		printJSON:   *printJSON,
		migrateOnly: *migrateOnly,
	}); err != nil {
		log.Error("formcoach failed", "error", err)
		closeLog()
		os.Exit(1)
	}
}

type options struct {
	exercise    string
	input       string
	demoFrames  int
	interval    time.Duration
	patientID   string
	notes       string
	localOnly   bool
	noSave      bool
	printJSON   bool
	migrateOnly bool
}

func run(cfg *config.Config, log *slog.Logger, opts options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store storage.Store
	if !opts.noSave || opts.migrateOnly {
		var err error
		store, err = openStore(ctx, cfg, opts.localOnly)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Info("store ready", "driver", driverFor(cfg, opts.localOnly))
	}
	if opts.migrateOnly {
		log.Info("migrations applied")
		return nil
	}

	exercise, err := models.ParseExercise(opts.exercise)
	if err != nil {
		return err
	}

	start := time.Now().UTC()
	var src pose.Source
	if opts.input != "" {
		f, err := os.Open(opts.input)
		if err != nil {
			return fmt.Errorf("opening recording: %w", err)
		}
		defer f.Close()
		src = pose.NewReplaySource(f, start)
		log.Info("replaying recording", "path", opts.input)
	} else {
		src = pose.NewCycleSource(pose.DemoPoses(), start, 700*time.Millisecond, opts.demoFrames)
		log.Info("running demo poses", "samples", opts.demoFrames)
	}

	reg := prometheus.NewRegistry()
	pipeline := coach.NewPipeline(cfg.Coach(), coach.NewMetrics(reg), log)
	runner := &coach.Runner{
		Pipeline:  pipeline,
		Exercise:  exercise,
		PatientID: opts.patientID,
		Options:   session.Options{LocalOnly: opts.localOnly, Notes: opts.notes},
		Start:     start,
		Interval:  opts.interval,
		Log:       log,
		OnFrame: func(fr coach.FrameResult) {
			log.Debug("frame", "state", fr.State, "reps", fr.Reps, "score", fr.Score, "flags", fr.Flags)
		},
	}

	s, stats, runErr := runner.Run(ctx, src)
	if s == nil {
		return runErr
	}
	if runErr != nil {
		log.Warn("run ended early, keeping the partial session", "error", runErr)
	}

	if store != nil {
		if err := store.SaveSession(context.Background(), s); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		log.Info("session saved", "session", s.ID, "local_only", s.LocalOnly)
	}

	printSummary(log, session.Summarize(s, cfg.Analysis.GoodScore), stats)

	if opts.printJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("encoding session: %w", err)
		}
	}

	if cfg.Metrics.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Metrics.Textfile, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
		log.Info("metrics written", "path", cfg.Metrics.Textfile)
	}
	return runErr
}

func driverFor(cfg *config.Config, localOnly bool) string {
	if localOnly {
		return config.DriverSQLite
	}
	return cfg.Storage.Driver
}

func openStore(ctx context.Context, cfg *config.Config, localOnly bool) (storage.Store, error) {
	store, err := storage.Open(ctx, driverFor(cfg, localOnly), cfg.Database.DSN(), cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return store, nil
}

func printSummary(log *slog.Logger, sum session.Summary, stats coach.RunStats) {
	log.Info("session summary",
		"session", sum.SessionID,
		"exercise", sum.Exercise,
		"reps", sum.Reps,
		"avg_score", sum.AvgScore,
		"grade", sum.Grade,
		"adherence_pct", sum.Adherence,
		"trend", sum.Trend,
		"duration_sec", sum.DurationSec,
		"frames_analyzed", stats.Analyzed,
		"frames_no_pose", stats.NoPose,
	)
	if len(sum.Flags) > 0 {
		log.Info("form flags", "flags", sum.Flags)
	}
}
