package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/geisspaul/MoProMa-Auswertung/internal/aerodynamics"
	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/geometry"
	"github.com/geisspaul/MoProMa-Auswertung/internal/segments"
	"github.com/geisspaul/MoProMa-Auswertung/internal/synchronizer"
)

// EnvPrefix prefixes every environment override, e.g. MOPROMA_SERVER_PORT
const EnvPrefix = "MOPROMA"

// Config represents the complete application configuration
type Config struct {
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Reduction ReductionConfig `yaml:"reduction" envconfig:"REDUCTION"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=stdout file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" validate:"required_unless=Output stdout"`
}

// TelemetryConfig selects the OpenTelemetry exporters
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME" validate:"required"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"gt=0"`
	MaxBodyBytes    int64           `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" validate:"gt=0"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig limits reduction submissions
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" validate:"gt=0"`
	Burst   int     `yaml:"burst" envconfig:"BURST" validate:"min=1"`
}

// PathsConfig contains file system paths. Relative paths are used as given.
type PathsConfig struct {
	DataDir          string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	CalibrationDir   string `yaml:"calibration_dir" envconfig:"CALIBRATION_DIR" validate:"required"`
	GeometryCacheDir string `yaml:"geometry_cache_dir" envconfig:"GEOMETRY_CACHE_DIR"`
	OutputDir        string `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
}

// GroupConfig is one channel group. Files are named
// <recording>_<name>.csv inside the data directory.
type GroupConfig struct {
	Name string `yaml:"name" validate:"required"`
	// Pressure groups are glitch filtered and calibrated
	Pressure bool `yaml:"pressure"`
}

// HingeConfig is an optional flap pivot in chord units
type HingeConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	X       float64 `yaml:"x" envconfig:"X"`
	Y       float64 `yaml:"y" envconfig:"Y"`
}

// Point returns the pivot, or nil when disabled
func (h HingeConfig) Point() *geometry.Point {
	if !h.Enabled {
		return nil
	}
	return &geometry.Point{X: h.X, Y: h.Y}
}

// WallConfig configures the tunnel-wall correction
type WallConfig struct {
	Enabled        bool    `yaml:"enabled" envconfig:"ENABLED"`
	ReferenceTable string  `yaml:"reference_table" envconfig:"REFERENCE_TABLE" validate:"required_if=Enabled true"`
	LowerDistance  float64 `yaml:"lower_distance" envconfig:"LOWER_DISTANCE" validate:"gt=0"`
	UpperDistance  float64 `yaml:"upper_distance" envconfig:"UPPER_DISTANCE" validate:"gt=0"`
	CorrectAlpha   bool    `yaml:"correct_alpha" envconfig:"CORRECT_ALPHA"`
}

// ReductionConfig holds the physical setup of the rig
type ReductionConfig struct {
	// Chord is the reference length in metres
	Chord float64 `yaml:"chord" envconfig:"CHORD" validate:"gt=0"`
	// Temperature is the air temperature in kelvin
	Temperature float64 `yaml:"temperature" envconfig:"TEMPERATURE" validate:"gt=0"`
	Timezone    string  `yaml:"timezone" envconfig:"TIMEZONE" validate:"required"`
	// OriginGroup names the group whose first sample is the shared time
	// origin of a recording. It is read but not synchronized.
	OriginGroup      string                  `yaml:"origin_group" envconfig:"ORIGIN_GROUP"`
	Groups           []GroupConfig           `yaml:"groups" ignored:"true" validate:"min=1,dive"`
	AlphaChannel     string                  `yaml:"alpha_channel" envconfig:"ALPHA_CHANNEL" validate:"required"`
	ProbeStatic      string                  `yaml:"probe_static" envconfig:"PROBE_STATIC" validate:"required"`
	ProbeTotal       string                  `yaml:"probe_total" envconfig:"PROBE_TOTAL" validate:"required"`
	PressurePatterns []string                `yaml:"pressure_patterns" envconfig:"PRESSURE_PATTERNS" validate:"min=1"`
	SyncTolerance    time.Duration           `yaml:"sync_tolerance" envconfig:"SYNC_TOLERANCE" validate:"gt=0"`
	GlitchLower      float64                 `yaml:"glitch_lower" envconfig:"GLITCH_LOWER" validate:"gt=0,ltfield=GlitchUpper"`
	GlitchUpper      float64                 `yaml:"glitch_upper" envconfig:"GLITCH_UPPER" validate:"gt=0"`
	TapTable         string                  `yaml:"tap_table" envconfig:"TAP_TABLE" validate:"required"`
	LeadingEdgeHinge HingeConfig             `yaml:"leading_edge_hinge" envconfig:"LE_HINGE"`
	TrailingHinge    HingeConfig             `yaml:"trailing_edge_hinge" envconfig:"TE_HINGE"`
	// FlapHinge is the pivot the tap layout is deflected about for the
	// workbook's flap angle
	FlapHinge        HingeConfig             `yaml:"flap_hinge" envconfig:"FLAP_HINGE"`
	Rakes            aerodynamics.RakeLayout `yaml:"rakes" ignored:"true"`
	Wall             WallConfig              `yaml:"wall" envconfig:"WALL"`
	WindOffSpeed     float64                 `yaml:"wind_off_speed" envconfig:"WIND_OFF_SPEED" validate:"gte=0"`
	Representative   segments.Tolerance      `yaml:"representative_tolerance" envconfig:"REPRESENTATIVE_TOLERANCE"`
	Settling         segments.Tolerance      `yaml:"settling_tolerance" envconfig:"SETTLING_TOLERANCE"`
}

// Hinges returns the configured flap pivots
func (r ReductionConfig) Hinges() aerodynamics.FlapHinges {
	return aerodynamics.FlapHinges{
		LeadingEdge:  r.LeadingEdgeHinge.Point(),
		TrailingEdge: r.TrailingHinge.Point(),
	}
}

// Location resolves the segment workbook time zone
func (r ReductionConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, apperrors.NewConfigError("unknown time zone", err).WithContext("timezone", r.Timezone)
	}
	return loc, nil
}

// Load reads the configuration: defaults, then the YAML file at path (if
// path is not empty), then MOPROMA_* environment overrides. The result is
// validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.NewConfigError("failed to read config file", err).WithContext("file", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.NewConfigError("failed to parse config file", err).WithContext("file", path)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to load config from env", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the struct constraints and the cross-field rules the tags
// cannot express
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperrors.NewConfigError("config validation failed", err)
	}
	seen := make(map[string]bool, len(c.Reduction.Groups))
	for _, g := range c.Reduction.Groups {
		if seen[g.Name] {
			return apperrors.NewConfigError("channel group listed twice", nil).WithContext("series", g.Name)
		}
		if g.Name == c.Reduction.OriginGroup {
			return apperrors.NewConfigError("origin group must not be synchronized", nil).WithContext("series", g.Name)
		}
		seen[g.Name] = true
	}
	if _, err := c.Reduction.Location(); err != nil {
		return err
	}
	for _, r := range []aerodynamics.Rake{c.Reduction.Rakes.Static, c.Reduction.Rakes.Total} {
		for _, i := range r.Exclude {
			if i < 0 || i >= r.Sensors {
				return apperrors.NewConfigError(fmt.Sprintf("excluded sensor %d out of range", i), nil).
					WithContext("channel", r.Prefix)
			}
		}
	}
	return nil
}

// Default returns default configuration for the MoProMa rig
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "stdout",
			FilePath: "logs/reduction.log",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "moproma-reduction",
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     1,
				Burst:   4,
			},
		},
		Paths: PathsConfig{
			DataDir:          "data",
			CalibrationDir:   "calibration",
			GeometryCacheDir: "geometry",
			OutputDir:        "output",
		},
		Reduction: ReductionConfig{
			Chord:       0.7,
			Temperature: 293.15,
			Timezone:    "Europe/Berlin",
			OriginGroup: "GPS",
			Groups: []GroupConfig{
				{Name: "static_K02", Pressure: true},
				{Name: "static_K03", Pressure: true},
				{Name: "static_K04", Pressure: true},
				{Name: "ptot_rake", Pressure: true},
				{Name: "pstat_rake", Pressure: true},
				{Name: "AOA"},
			},
			AlphaChannel:     aerodynamics.ColAlpha,
			ProbeStatic:      aerodynamics.DefaultProbe.Static,
			ProbeTotal:       aerodynamics.DefaultProbe.Total,
			PressurePatterns: append([]string(nil), aerodynamics.DefaultPressurePatterns...),
			SyncTolerance:    synchronizer.DefaultTolerance,
			GlitchLower:      0.85,
			GlitchUpper:      1.07,
			TapTable:         "taps.csv",
			LeadingEdgeHinge: HingeConfig{Enabled: true, X: 0.2, Y: 0},
			TrailingHinge:    HingeConfig{Enabled: true, X: 0.8, Y: 0},
			FlapHinge:        HingeConfig{Enabled: true, X: 0.8, Y: 0},
			Rakes:            aerodynamics.DefaultRakeLayout,
			Wall: WallConfig{
				Enabled:        true,
				ReferenceTable: "wall_reference.dat",
				LowerDistance:  aerodynamics.DefaultWallDistanceLower,
				UpperDistance:  aerodynamics.DefaultWallDistanceUpper,
				CorrectAlpha:   true,
			},
			WindOffSpeed:   segments.DefaultWindOffSpeed,
			Representative: segments.DefaultRepresentativeTolerance,
			Settling:       segments.DefaultSettlingTolerance,
		},
	}
}
