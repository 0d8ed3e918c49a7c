package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/claude/formcoach/internal/coach"
	"github.com/claude/formcoach/internal/reps"
	"github.com/claude/formcoach/internal/rules"
	"github.com/claude/formcoach/internal/storage"
)

// Storage drivers.
const (
	DriverPostgres = storage.DriverPostgres
	DriverSQLite   = storage.DriverSQLite
)

type Config struct {
	Analysis          AnalysisConfig  `yaml:"analysis"`
	Squat             SquatConfig     `yaml:"squat"`
	ShoulderAbduction AbductionConfig `yaml:"shoulder_abduction"`
	Pullup            PullupConfig    `yaml:"pullup"`
	Storage           StorageConfig   `yaml:"storage"`
	Database          DatabaseConfig  `yaml:"database"`
	Log               LogConfig       `yaml:"log"`
	Metrics           MetricsConfig   `yaml:"metrics"`
}

type AnalysisConfig struct {
	MinConfidence      float64 `yaml:"min_confidence"`
	MinKeypoints       int     `yaml:"min_keypoints"`
	LowConfidenceRatio float64 `yaml:"low_confidence_ratio"`
	FlagDeduction      int     `yaml:"flag_deduction"`
	MaxDeduction       int     `yaml:"max_deduction"`
	RepDebounceMS      int     `yaml:"rep_debounce_ms"`
	// GoodScore is the repetition score counted towards adherence.
	GoodScore int `yaml:"good_score"`
}

type SquatConfig struct {
	DepthAngle      float64 `yaml:"depth_angle"`
	MaxTorsoLean    float64 `yaml:"max_torso_lean"`
	ValgusThreshold float64 `yaml:"valgus_threshold"`
	DownBelow       float64 `yaml:"down_below"`
	UpAbove         float64 `yaml:"up_above"`
}

type AbductionConfig struct {
	TargetROM             float64 `yaml:"target_rom"`
	ROMTolerance          float64 `yaml:"rom_tolerance"`
	MaxElbowAboveShoulder float64 `yaml:"max_elbow_above_shoulder"`
	SymmetryThreshold     float64 `yaml:"symmetry_threshold"`
	DownBelow             float64 `yaml:"down_below"`
	UpAbove               float64 `yaml:"up_above"`
}

type PullupConfig struct {
	MaxBodySwing      float64 `yaml:"max_body_swing"`
	MaxArmpitAtTop    float64 `yaml:"max_armpit_at_top"`
	MinArmpitAtBottom float64 `yaml:"min_armpit_at_bottom"`
	UpBelow           float64 `yaml:"up_below"`
	DownAbove         float64 `yaml:"down_above"`
}

type StorageConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, if set, also writes logs to a size-rotated file.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type MetricsConfig struct {
	// Textfile is where the CLI writes Prometheus metrics after a run, for
	// the node exporter's textfile collector. Empty disables it.
	Textfile string `yaml:"textfile"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Default returns the built-in thresholds with local SQLite storage.
func Default() *Config {
	r := rules.DefaultConfig()
	d := reps.DefaultConfig()
	return &Config{
		Analysis: AnalysisConfig{
			MinConfidence:      r.MinConfidence,
			MinKeypoints:       r.MinKeypoints,
			LowConfidenceRatio: r.LowConfidenceRatio,
			FlagDeduction:      r.FlagDeduction,
			MaxDeduction:       r.MaxDeduction,
			RepDebounceMS:      int(d.Debounce / time.Millisecond),
			GoodScore:          80,
		},
		Squat: SquatConfig{
			DepthAngle:      r.Squat.DepthAngle,
			MaxTorsoLean:    r.Squat.MaxTorsoLean,
			ValgusThreshold: r.Squat.ValgusThreshold,
			DownBelow:       d.Squat.Low,
			UpAbove:         d.Squat.High,
		},
		ShoulderAbduction: AbductionConfig{
			TargetROM:             r.ShoulderAbduction.TargetROM,
			ROMTolerance:          r.ShoulderAbduction.ROMTolerance,
			MaxElbowAboveShoulder: r.ShoulderAbduction.MaxElbowAboveShoulder,
			SymmetryThreshold:     r.ShoulderAbduction.SymmetryThreshold,
			DownBelow:             d.ShoulderAbduction.Low,
			UpAbove:               d.ShoulderAbduction.High,
		},
		Pullup: PullupConfig{
			MaxBodySwing:      r.Pullup.MaxBodySwing,
			MaxArmpitAtTop:    r.Pullup.MaxArmpitAtTop,
			MinArmpitAtBottom: r.Pullup.MinArmpitAtBottom,
			UpBelow:           d.Pullup.Low,
			DownAbove:         d.Pullup.High,
		},
		Storage: StorageConfig{Driver: DriverSQLite, SQLitePath: "data/formcoach.db"},
		Database: DatabaseConfig{
			Host: "localhost",
			Port: 5432,
			Name: "formcoach",
			User: "formcoach",
		},
		Log: LogConfig{Level: "info", Format: "text", MaxSizeMB: 10, MaxBackups: 3},
	}
}

// Load starts from Default, overlays the YAML file at path (if path is not
// empty), then applies environment variable overrides. Env vars use the
// prefix FORMCOACH_:
//
//	FORMCOACH_DB_HOST, FORMCOACH_DB_PORT, FORMCOACH_DB_NAME,
//	FORMCOACH_DB_USER, FORMCOACH_DB_PASSWORD, FORMCOACH_DB_SSLMODE,
//	FORMCOACH_STORAGE_DRIVER, FORMCOACH_SQLITE_PATH,
//	FORMCOACH_LOG_LEVEL, FORMCOACH_LOG_FORMAT, FORMCOACH_LOG_FILE,
//	FORMCOACH_METRICS_TEXTFILE, FORMCOACH_MIN_CONFIDENCE, FORMCOACH_GOOD_SCORE
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FORMCOACH_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FORMCOACH_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FORMCOACH_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FORMCOACH_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FORMCOACH_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FORMCOACH_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("FORMCOACH_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("FORMCOACH_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("FORMCOACH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("FORMCOACH_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("FORMCOACH_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("FORMCOACH_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}
	if v := os.Getenv("FORMCOACH_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.MinConfidence = f
		}
	}
	if v := os.Getenv("FORMCOACH_GOOD_SCORE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.GoodScore = n
		}
	}
}

// validate reports every problem at once.
func (c *Config) validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}

	a := c.Analysis
	check(a.MinConfidence >= 0 && a.MinConfidence <= 1, "analysis.min_confidence must be within [0, 1]")
	check(a.MinKeypoints >= 0, "analysis.min_keypoints must not be negative")
	check(a.LowConfidenceRatio >= 0 && a.LowConfidenceRatio <= 1, "analysis.low_confidence_ratio must be within [0, 1]")
	check(a.FlagDeduction >= 0, "analysis.flag_deduction must not be negative")
	check(a.MaxDeduction >= 0 && a.MaxDeduction <= rules.BaseScore, "analysis.max_deduction must be within [0, %d]", rules.BaseScore)
	check(a.RepDebounceMS >= 0, "analysis.rep_debounce_ms must not be negative")
	check(a.GoodScore >= 0 && a.GoodScore <= rules.BaseScore, "analysis.good_score must be within [0, %d]", rules.BaseScore)

	check(c.Squat.DownBelow < c.Squat.UpAbove, "squat.down_below must be less than squat.up_above")
	check(c.ShoulderAbduction.DownBelow < c.ShoulderAbduction.UpAbove, "shoulder_abduction.down_below must be less than shoulder_abduction.up_above")
	check(c.Pullup.UpBelow < c.Pullup.DownAbove, "pullup.up_below must be less than pullup.down_above")

	switch c.Storage.Driver {
	case DriverSQLite:
		check(c.Storage.SQLitePath != "", "storage.sqlite_path is required for the sqlite driver")
	case DriverPostgres:
		check(c.Database.Host != "", "database.host is required")
		check(c.Database.Port != 0, "database.port is required")
		check(c.Database.Name != "", "database.name is required")
		check(c.Database.User != "", "database.user is required")
	default:
		err = multierr.Append(err, fmt.Errorf("storage.driver %q is not one of %s, %s", c.Storage.Driver, DriverPostgres, DriverSQLite))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	return err
}

// Rules returns the rule engine configuration.
func (c *Config) Rules() rules.Config {
	a := c.Analysis
	return rules.Config{
		MinConfidence:      a.MinConfidence,
		MinKeypoints:       a.MinKeypoints,
		LowConfidenceRatio: a.LowConfidenceRatio,
		FlagDeduction:      a.FlagDeduction,
		MaxDeduction:       a.MaxDeduction,
		Squat: rules.SquatRules{
			DepthAngle:      c.Squat.DepthAngle,
			MaxTorsoLean:    c.Squat.MaxTorsoLean,
			ValgusThreshold: c.Squat.ValgusThreshold,
		},
		ShoulderAbduction: rules.AbductionRules{
			TargetROM:             c.ShoulderAbduction.TargetROM,
			ROMTolerance:          c.ShoulderAbduction.ROMTolerance,
			MaxElbowAboveShoulder: c.ShoulderAbduction.MaxElbowAboveShoulder,
			SymmetryThreshold:     c.ShoulderAbduction.SymmetryThreshold,
		},
		Pullup: rules.PullupRules{
			MaxBodySwing:      c.Pullup.MaxBodySwing,
			MaxArmpitAtTop:    c.Pullup.MaxArmpitAtTop,
			MinArmpitAtBottom: c.Pullup.MinArmpitAtBottom,
		},
	}
}

// Reps returns the repetition detector configuration.
func (c *Config) Reps() reps.Config {
	return reps.Config{
		Debounce:          time.Duration(c.Analysis.RepDebounceMS) * time.Millisecond,
		Squat:             reps.Thresholds{Low: c.Squat.DownBelow, High: c.Squat.UpAbove, LowIsDown: true},
		ShoulderAbduction: reps.Thresholds{Low: c.ShoulderAbduction.DownBelow, High: c.ShoulderAbduction.UpAbove, LowIsDown: true},
		Pullup:            reps.Thresholds{Low: c.Pullup.UpBelow, High: c.Pullup.DownAbove, LowIsDown: false},
	}
}

// Coach returns the pipeline configuration.
func (c *Config) Coach() coach.Config {
	return coach.Config{Rules: c.Rules(), Reps: c.Reps()}
}
