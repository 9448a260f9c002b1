package config

import (
	"BehaviorSpectra/internal/engine/registry"
	"BehaviorSpectra/internal/profile"
	"BehaviorSpectra/pkg/cms"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MinResetIntervalMs is the shortest honored reset timer. Smaller values disable resets for the
// profile.
const MinResetIntervalMs = 100

const (
	defaultNumWorkers         = 1
	defaultSizeOfEventChannel = 4096
)

// BehaviorProfileDef defines a single behavior profile from the config file.
type BehaviorProfileDef struct {
	Fields       string   `yaml:"fields"`
	EventCodes   []string `yaml:"event_codes"`
	ResetTimerMs uint64   `yaml:"reset_timer_ms"`
}

// CountMinSketchConfig holds the sketch sizing and the behavior profiles, one per sketch.
type CountMinSketchConfig struct {
	Enabled   bool `yaml:"enabled"`
	NSketches int  `yaml:"n_sketches"`
	// GammaEps holds one (gamma, eps) pair per sketch.
	GammaEps [][]float64 `yaml:"gamma_eps"`
	// RowsCols holds one (rows, cols) pair per sketch. If set it supersedes GammaEps.
	RowsCols [][]uint64 `yaml:"rows_cols"`
	// AnomalyThreshold flags a profile occurrence whose estimate, after counting it, is at most
	// this value. Zero disables anomaly records.
	AnomalyThreshold uint64 `yaml:"anomaly_threshold"`
	// WarmupMs suppresses anomaly records until the sketches have been counting for this long.
	WarmupMs         uint64               `yaml:"warmup_ms"`
	BehaviorProfiles []BehaviorProfileDef `yaml:"behavior_profiles"`
}

// EngineConfig holds the configuration for the event processing workers.
type EngineConfig struct {
	NumWorkers         int `yaml:"num_workers"`
	SizeOfEventChannel int `yaml:"size_of_event_channel"`
}

// ProbeConfig holds the NATS connection used to ship events.
type ProbeConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// APIConfig holds the listen addresses of the HTTP API and the gRPC health service.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	GRPCAddr   string `yaml:"grpc_addr"`
}

// ClickHouseConfig holds the connection details for ClickHouse.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// TextWriterConfig holds the output directory of the text writer.
type TextWriterConfig struct {
	RootPath string `yaml:"root_path"`
}

// SMTPConfig holds the mail server used by the email writer.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// WriterDef defines a single anomaly writer.
type WriterDef struct {
	Type          string           `yaml:"type"` // text, clickhouse or email
	Enabled       bool             `yaml:"enabled"`
	FlushInterval string           `yaml:"flush_interval"`
	Text          TextWriterConfig `yaml:"text"`
	ClickHouse    ClickHouseConfig `yaml:"clickhouse"`
}

// Interval parses FlushInterval.
func (w WriterDef) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(w.FlushInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid flush_interval for writer type '%s': %w", w.Type, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("flush_interval for writer type '%s' must be positive", w.Type)
	}
	return d, nil
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	CountMinSketch CountMinSketchConfig `yaml:"count_min_sketch"`
	Engine         EngineConfig         `yaml:"engine"`
	Probe          ProbeConfig          `yaml:"probe"`
	API            APIConfig            `yaml:"api"`
	Writers        []WriterDef          `yaml:"writers"`
	SMTP           SMTPConfig           `yaml:"smtp"`
}

// LoadConfig reads the configuration from a YAML file, applies defaults and validates it.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.NumWorkers <= 0 {
		c.Engine.NumWorkers = defaultNumWorkers
	}
	if c.Engine.SizeOfEventChannel <= 0 {
		c.Engine.SizeOfEventChannel = defaultSizeOfEventChannel
	}
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.CountMinSketch.Validate(); err != nil {
		return err
	}
	for i, w := range c.Writers {
		if !w.Enabled {
			continue
		}
		if _, err := w.Interval(); err != nil {
			return &registry.ConfigError{Field: fmt.Sprintf("writers[%d]", i), Reason: err.Error()}
		}
	}
	return nil
}

// Validate checks the sketch configuration. A disabled configuration is always valid.
func (c *CountMinSketchConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.NSketches < 1 {
		return &registry.ConfigError{Field: "n_sketches", Reason: "at least one sketch is required"}
	}
	if len(c.GammaEps) == 0 && len(c.RowsCols) == 0 {
		return &registry.ConfigError{Field: "gamma_eps", Reason: "either gamma_eps or rows_cols must be set"}
	}
	if len(c.GammaEps) > 0 && len(c.GammaEps) != c.NSketches {
		return &registry.ConfigError{Field: "gamma_eps", Reason: fmt.Sprintf("length %d does not match n_sketches %d", len(c.GammaEps), c.NSketches)}
	}
	if len(c.RowsCols) > 0 && len(c.RowsCols) != c.NSketches {
		return &registry.ConfigError{Field: "rows_cols", Reason: fmt.Sprintf("length %d does not match n_sketches %d", len(c.RowsCols), c.NSketches)}
	}
	if len(c.BehaviorProfiles) != c.NSketches {
		return &registry.ConfigError{Field: "behavior_profiles", Reason: fmt.Sprintf("length %d does not match n_sketches %d", len(c.BehaviorProfiles), c.NSketches)}
	}

	if len(c.RowsCols) > 0 {
		for i, rc := range c.RowsCols {
			field := fmt.Sprintf("rows_cols[%d]", i)
			if len(rc) != 2 {
				return &registry.ConfigError{Field: field, Reason: "expected a [rows, cols] pair"}
			}
			if rc[0] < 1 || rc[1] < 1 {
				return &registry.ConfigError{Field: field, Reason: "rows and cols must be at least 1"}
			}
			if err := cms.CheckSize(rc[0], rc[1]); err != nil {
				return &registry.ConfigError{Field: field, Reason: err.Error()}
			}
		}
	} else {
		for i, ge := range c.GammaEps {
			field := fmt.Sprintf("gamma_eps[%d]", i)
			if len(ge) != 2 {
				return &registry.ConfigError{Field: field, Reason: "expected a [gamma, eps] pair"}
			}
			if !cms.ValidGamma(ge[0]) || !cms.ValidEps(ge[1]) {
				return &registry.ConfigError{Field: field, Reason: fmt.Sprintf("gamma %v and eps %v must be in (0,1)", ge[0], ge[1])}
			}
			if err := cms.CheckSize(cms.RowsFromGamma(ge[0]), cms.ColsFromEps(ge[1])); err != nil {
				return &registry.ConfigError{Field: field, Reason: err.Error()}
			}
		}
	}

	_, err := c.Profiles()
	return err
}

// Profiles builds the behavior profiles in configuration order.
func (c *CountMinSketchConfig) Profiles() ([]*profile.Profile, error) {
	out := make([]*profile.Profile, len(c.BehaviorProfiles))
	for i, def := range c.BehaviorProfiles {
		p, err := profile.New(i, def.Fields, def.EventCodes, ResetInterval(def.ResetTimerMs))
		if err != nil {
			return nil, &registry.ConfigError{Field: fmt.Sprintf("behavior_profiles[%d]", i), Reason: err.Error()}
		}
		out[i] = p
	}
	return out, nil
}

// SketchSpecs returns the sizing of every sketch. RowsCols takes precedence over GammaEps.
func (c *CountMinSketchConfig) SketchSpecs() ([]registry.SketchSpec, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !c.Enabled {
		return nil, nil
	}

	specs := make([]registry.SketchSpec, c.NSketches)
	if len(c.RowsCols) > 0 && len(c.GammaEps) > 0 {
		log.Println("[Override Notice] Count min sketch data structures will be overridden with 'rows_cols' as it supersedes 'gamma_eps'")
	}
	for i := range specs {
		if len(c.RowsCols) > 0 {
			rows, cols := c.RowsCols[i][0], c.RowsCols[i][1]
			specs[i].Rows, specs[i].Cols = rows, cols
			log.Printf("Count min sketch number (%d) loaded with rows and cols (%d,%d) equivalent to gamma and eps (%.6g,%.6g) using %d bytes",
				i, rows, cols, cms.GammaFromRows(rows), cms.EpsFromCols(cols), cms.SizeBytes(rows, cols))
		} else {
			gamma, eps := c.GammaEps[i][0], c.GammaEps[i][1]
			specs[i].Gamma, specs[i].Eps = gamma, eps
			rows, cols := cms.RowsFromGamma(gamma), cms.ColsFromEps(eps)
			log.Printf("Count min sketch number (%d) loaded with gamma and eps (%g,%g) equivalent to rows and cols (%d,%d) using %d bytes",
				i, gamma, eps, rows, cols, cms.SizeBytes(rows, cols))
		}

		ms := c.BehaviorProfiles[i].ResetTimerMs
		specs[i].ResetInterval = ResetInterval(ms)
		if ms > 0 && specs[i].ResetInterval == 0 {
			log.Printf("Warning: behavior profile (%d) reset_timer_ms %d is not above %d ms, resets disabled", i, ms, MinResetIntervalMs)
		}
	}
	return specs, nil
}

// Warmup returns WarmupMs as a duration.
func (c *CountMinSketchConfig) Warmup() time.Duration {
	return time.Duration(c.WarmupMs) * time.Millisecond
}

// ResetInterval converts reset_timer_ms to a duration. Values up to MinResetIntervalMs disable
// resets.
func ResetInterval(ms uint64) time.Duration {
	if ms <= MinResetIntervalMs {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
