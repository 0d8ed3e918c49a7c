package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/formcoach/internal/angles"
	"github.com/claude/formcoach/internal/models"
	"github.com/claude/formcoach/internal/storage"
)

func seeded(t *testing.T) (*reviewer, *bytes.Buffer, *models.Session) {
	t.Helper()
	store, err := storage.OpenLocalStore(filepath.Join(t.TempDir(), "review.db"))
	if err != nil {
		t.Fatalf("OpenLocalStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	s := &models.Session{
		ID:        uuid.New(),
		PatientID: "p-1",
		Exercise:  models.ExerciseShoulderAbduction,
		StartedAt: start,
		EndedAt:   &end,
		AvgScore:  85,
		Flags:     []string{"Aim for symmetry"},
		Reps:      2,
		RepMetrics: []models.RepMetric{
			{RepIndex: 1, TStart: 1000, TEnd: 3000, Angles: angles.Angles{Shoulder: angles.Ptr(88)}, Flags: []string{}, Score: 90},
			{RepIndex: 2, TStart: 4000, TEnd: 6000, Angles: angles.Angles{Shoulder: angles.Ptr(70)}, Flags: []string{"Aim for symmetry"}, Score: 80},
		},
	}
	if err := store.SaveSession(context.Background(), s); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	var out bytes.Buffer
	return &reviewer{store: store, out: &out, goodScore: 80}, &out, s
}

// TestReviewListAndShow verifies the session table and the detail view.
func TestReviewListAndShow(t *testing.T) {
	r, out, s := seeded(t)
	ctx := context.Background()

	if err := r.list(ctx, "p-1"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), s.ID.String()) {
		t.Errorf("list output missing session:\n%s", out)
	}

	out.Reset()
	if err := r.comment(ctx, s.ID.String(), "Clinician", "3500", "watch the left shoulder"); err != nil {
		t.Fatalf("comment: %v", err)
	}

	out.Reset()
	if err := r.show(ctx, s.ID.String()); err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"adherence 100%", "Score     85 (good)", "[3.5s] clinician: watch the left shoulder"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("show output missing %q:\n%s", want, out)
		}
	}
}

// TestReviewCommentValidation verifies that bad input is rejected.
func TestReviewCommentValidation(t *testing.T) {
	r, _, s := seeded(t)
	ctx := context.Background()
	cases := [][4]string{
		{"not-a-uuid", "clinician", "0", "x"},
		{s.ID.String(), "coach", "0", "x"},
		{s.ID.String(), "patient", "soon", "x"},
		{s.ID.String(), "patient", "-5", "x"},
		{uuid.NewString(), "patient", "0", "x"},
	}
	for _, c := range cases {
		if err := r.comment(ctx, c[0], c[1], c[2], c[3]); err == nil {
			t.Errorf("comment(%v) succeeded, want error", c)
		}
	}
}
