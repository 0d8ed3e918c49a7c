package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/claude/formcoach/internal/config"
	"github.com/claude/formcoach/internal/models"
	"github.com/claude/formcoach/internal/session"
	"github.com/claude/formcoach/internal/storage"
)

const usage = `Usage: formcoach-review [flags] <command> [args]

Commands:
  list                              list sessions (filter with -patient)
  show <session-id>                 show a session with its analytics and comments
  comment <session-id> <author> <t-ms> <text...>
                                    add a clinician or patient comment
`

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	envFile := flag.String("env", ".env", "optional .env file with FORMCOACH_ overrides")
	patientID := flag.String("patient", "", "only list this patient's sessions")
	localOnly := flag.Bool("local", false, "read the local SQLite store")
	asJSON := flag.Bool("json", false, "print JSON instead of tables")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("failed to load env file", "path", *envFile, "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	driver := cfg.Storage.Driver
	if *localOnly {
		driver = config.DriverSQLite
	}
	ctx := context.Background()
	store, err := storage.Open(ctx, driver, cfg.Database.DSN(), cfg.Storage.SQLitePath)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	r := &reviewer{store: store, out: os.Stdout, json: *asJSON, goodScore: cfg.Analysis.GoodScore}
	args := flag.Args()
	switch args[0] {
	case "list":
		err = r.list(ctx, *patientID)
	case "show":
		if len(args) != 2 {
			err = errors.New("show needs a session id")
			break
		}
		err = r.show(ctx, args[1])
	case "comment":
		if len(args) < 5 {
			err = errors.New("comment needs a session id, author, time offset and text")
			break
		}
		err = r.comment(ctx, args[1], args[2], args[3], strings.Join(args[4:], " "))
	default:
		err = fmt.Errorf("unknown command %q", args[0])
	}
	if err != nil {
		log.Error("review failed", "command", args[0], "error", err)
		store.Close()
		os.Exit(1)
	}
}

type reviewer struct {
	store     storage.Store
	out       io.Writer
	json      bool
	goodScore int
}

func (r *reviewer) list(ctx context.Context, patientID string) error {
	sessions, err := r.store.ListSessions(ctx, patientID)
	if err != nil {
		return err
	}
	if r.json {
		return r.encode(sessions)
	}

	tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPATIENT\tEXERCISE\tSTARTED\tREPS\tSCORE\tFLAGS")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			s.ID, s.PatientID, s.Exercise, s.StartedAt.Local().Format(time.DateTime), s.Reps, s.AvgScore, len(s.Flags))
	}
	return tw.Flush()
}

type sessionView struct {
	Session  *models.Session  `json:"session"`
	Summary  session.Summary  `json:"summary"`
	Comments []models.Comment `json:"comments"`
}

func (r *reviewer) show(ctx context.Context, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("parsing session id: %w", err)
	}
	s, err := r.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	comments, err := r.store.ListComments(ctx, id)
	if err != nil {
		return err
	}
	view := sessionView{Session: s, Summary: session.Summarize(s, r.goodScore), Comments: comments}
	if r.json {
		if view.Comments == nil {
			view.Comments = []models.Comment{}
		}
		return r.encode(view)
	}

	sum := view.Summary
	fmt.Fprintf(r.out, "Session   %s\n", s.ID)
	fmt.Fprintf(r.out, "Patient   %s\n", s.PatientID)
	fmt.Fprintf(r.out, "Exercise  %s\n", s.Exercise)
	fmt.Fprintf(r.out, "Started   %s (%.0fs)\n", s.StartedAt.Local().Format(time.DateTime), sum.DurationSec)
	fmt.Fprintf(r.out, "Score     %d (%s)\n", sum.AvgScore, sum.Grade)
	fmt.Fprintf(r.out, "Reps      %d, adherence %d%%, trend %s\n", sum.Reps, sum.Adherence, sum.Trend)
	if s.Notes != nil {
		fmt.Fprintf(r.out, "Notes     %s\n", *s.Notes)
	}
	if len(s.Flags) > 0 {
		fmt.Fprintf(r.out, "Flags     %s\n", strings.Join(s.Flags, "; "))
	}

	if len(s.RepMetrics) > 0 {
		fmt.Fprintln(r.out)
		tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "REP\tSTART\tEND\tSCORE\tFLAGS")
		for _, m := range s.RepMetrics {
			fmt.Fprintf(tw, "%d\t%.1fs\t%.1fs\t%d\t%s\n",
				m.RepIndex, float64(m.TStart)/1000, float64(m.TEnd)/1000, m.Score, strings.Join(m.Flags, "; "))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(comments) > 0 {
		fmt.Fprintln(r.out)
		for _, c := range comments {
			fmt.Fprintf(r.out, "[%.1fs] %s: %s\n", float64(c.T)/1000, c.Author, c.Text)
		}
	}
	return nil
}

func (r *reviewer) comment(ctx context.Context, rawID, rawAuthor, rawT, text string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("parsing session id: %w", err)
	}
	author, err := models.ParseAuthor(rawAuthor)
	if err != nil {
		return err
	}
	t, err := strconv.ParseInt(rawT, 10, 64)
	if err != nil {
		return fmt.Errorf("parsing time offset: %w", err)
	}
	c := &models.Comment{SessionID: id, Author: author, T: t, Text: text}
	if err := r.store.AddComment(ctx, c); err != nil {
		return err
	}
	if r.json {
		return r.encode(c)
	}
	fmt.Fprintf(r.out, "added comment %s\n", c.ID)
	return nil
}

func (r *reviewer) encode(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
