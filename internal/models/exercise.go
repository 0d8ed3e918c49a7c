package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownExercise is returned for exercise names outside the supported set.
var ErrUnknownExercise = errors.New("unknown exercise")

// Exercise is the closed set of movements the coach can analyze.
type Exercise string

const (
	ExerciseSquat             Exercise = "Squat"
	ExerciseShoulderAbduction Exercise = "ShoulderAbduction"
	ExercisePullup            Exercise = "Pullup"
)

// Exercises lists every supported exercise in display order.
var Exercises = []Exercise{ExerciseSquat, ExerciseShoulderAbduction, ExercisePullup}

// exerciseMap maps lowercased spellings (as sent by clients and CLIs) to the
// canonical exercise.
var exerciseMap = map[string]Exercise{
	"squat":              ExerciseSquat,
	"squats":             ExerciseSquat,
	"shoulderabduction":  ExerciseShoulderAbduction,
	"shoulder_abduction": ExerciseShoulderAbduction,
	"shoulder-abduction": ExerciseShoulderAbduction,
	"shoulder abduction": ExerciseShoulderAbduction,
	"pullup":             ExercisePullup,
	"pull-up":            ExercisePullup,
	"pull_up":            ExercisePullup,
	"pullups":            ExercisePullup,
}

// ParseExercise normalizes an exercise name. Lookup is case-insensitive and
// ignores surrounding whitespace.
func ParseExercise(s string) (Exercise, error) {
	if e, ok := exerciseMap[strings.ToLower(strings.TrimSpace(s))]; ok {
		return e, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownExercise, s)
}

// Valid reports whether e is one of the supported exercises.
func (e Exercise) Valid() bool {
	switch e {
	case ExerciseSquat, ExerciseShoulderAbduction, ExercisePullup:
		return true
	}
	return false
}

func (e Exercise) String() string { return string(e) }
