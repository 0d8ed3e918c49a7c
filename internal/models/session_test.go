package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/formcoach/internal/angles"
)

func sampleSession() *Session {
	ended := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	notes := "felt good"
	return &Session{
		ID:        uuid.MustParse("6f1c2a8e-4b7d-4c1e-9a55-0d3e2f1b7c90"),
		PatientID: "p-17",
		Exercise:  ExerciseSquat,
		StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		EndedAt:   &ended,
		AvgScore:  85,
		Flags:     []string{"Go deeper"},
		Reps:      1,
		RepMetrics: []RepMetric{{
			RepIndex: 1,
			TStart:   2000,
			TEnd:     4000,
			Angles:   angles.Angles{Knee: angles.Ptr(170)},
			Flags:    []string{"Go deeper"},
			Score:    85,
		}},
		Notes: &notes,
	}
}

// TestSessionJSONKeys verifies that sessions encode with the camelCase keys
// and RFC 3339 timestamps used by the session API.
func TestSessionJSONKeys(t *testing.T) {
	b, err := json.Marshal(sampleSession())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out := string(b)
	for _, want := range []string{
		`"id":"6f1c2a8e-4b7d-4c1e-9a55-0d3e2f1b7c90"`,
		`"patientId":"p-17"`,
		`"exercise":"Squat"`,
		`"startedAt":"2026-03-01T10:00:00Z"`,
		`"endedAt":"2026-03-01T10:05:00Z"`,
		`"avgScore":85`,
		`"repMetrics":[{"repIndex":1,"tStart":2000,"tEnd":4000,"angles":{"knee":170},"flags":["Go deeper"],"score":85}]`,
		`"localOnly":false`,
		`"notes":"felt good"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("encoded session missing %s\n%s", want, out)
		}
	}
	if strings.Contains(out, "videoUrl") {
		t.Errorf("nil videoUrl should be omitted: %s", out)
	}
}

// TestSessionClone verifies that a clone shares no mutable state with the
// original.
func TestSessionClone(t *testing.T) {
	s := sampleSession()
	c := s.Clone()

	c.Flags[0] = "changed"
	c.RepMetrics[0].Flags[0] = "changed"
	*c.RepMetrics[0].Angles.Knee = 10
	*c.EndedAt = c.EndedAt.Add(time.Hour)
	*c.Notes = "changed"

	if s.Flags[0] != "Go deeper" || s.RepMetrics[0].Flags[0] != "Go deeper" {
		t.Error("clone shares flag slices with the original")
	}
	if *s.RepMetrics[0].Angles.Knee != 170 {
		t.Error("clone shares angle values with the original")
	}
	if s.Duration() != 5*time.Minute {
		t.Errorf("original duration = %v, want 5m", s.Duration())
	}
	if *s.Notes != "felt good" {
		t.Error("clone shares notes with the original")
	}
}

func TestRepMetricDuration(t *testing.T) {
	m := RepMetric{TStart: 1500, TEnd: 3750}
	if got := m.Duration(); got != 2250*time.Millisecond {
		t.Errorf("Duration = %v", got)
	}
}

// TestParseAuthor verifies the closed author set.
func TestParseAuthor(t *testing.T) {
	for in, want := range map[string]Author{
		"clinician":  AuthorClinician,
		"Patient":    AuthorPatient,
		" CLINICIAN": AuthorClinician,
	} {
		got, err := ParseAuthor(in)
		if err != nil || got != want {
			t.Errorf("ParseAuthor(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseAuthor("therapist"); !errors.Is(err, ErrUnknownAuthor) {
		t.Errorf("ParseAuthor(therapist) err = %v, want ErrUnknownAuthor", err)
	}
}

func TestCommentValidate(t *testing.T) {
	ok := Comment{Author: AuthorPatient, T: 1200, Text: "knee hurt here"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	bad := []Comment{
		{Author: "coach", T: 0, Text: "x"},
		{Author: AuthorClinician, T: 0, Text: "   "},
		{Author: AuthorClinician, T: -1, Text: "x"},
	}
	for i, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("case %d: expected error for %+v", i, c)
		}
	}
}
