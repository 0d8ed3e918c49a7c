package models

import (
	"errors"
	"testing"
)

// TestParseExercise verifies that the spellings used by clients and the CLI
// all normalize to the canonical exercise.
func TestParseExercise(t *testing.T) {
	cases := []struct {
		input string
		want  Exercise
	}{
		{"Squat", ExerciseSquat},
		{"squat", ExerciseSquat},
		{"  SQUAT ", ExerciseSquat},
		{"ShoulderAbduction", ExerciseShoulderAbduction},
		{"shoulder_abduction", ExerciseShoulderAbduction},
		{"shoulder-abduction", ExerciseShoulderAbduction},
		{"Pullup", ExercisePullup},
		{"pull-up", ExercisePullup},
	}
	for _, tc := range cases {
		got, err := ParseExercise(tc.input)
		if err != nil {
			t.Errorf("ParseExercise(%q): unexpected error %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseExercise(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

// TestParseExerciseUnknown verifies that unsupported names are rejected with
// ErrUnknownExercise so callers can surface a configuration warning.
func TestParseExerciseUnknown(t *testing.T) {
	_, err := ParseExercise("deadlift")
	if !errors.Is(err, ErrUnknownExercise) {
		t.Fatalf("err = %v, want ErrUnknownExercise", err)
	}
}

func TestExerciseValid(t *testing.T) {
	for _, e := range Exercises {
		if !e.Valid() {
			t.Errorf("%q.Valid() = false", e)
		}
	}
	if Exercise("Lunge").Valid() {
		t.Error(`"Lunge".Valid() = true`)
	}
}
