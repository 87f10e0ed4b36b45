package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink drivers.
const (
	DriverPostGIS = "postgis"
	DriverMySQL   = "mysql"
	DriverSQLite  = "sqlite"
	DriverREST    = "rest"
	DriverMongo   = "mongo"
	DriverMemory  = "memory"
)

// Geocode providers.
const (
	ProviderNominatim = "nominatim"
	ProviderGoogle    = "google"
	ProviderCascade   = "cascade"
)

// Config holds the full application configuration.
type Config struct {
	Sink    SinkConfig    `yaml:"sink" mapstructure:"sink"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Seed    SeedConfig    `yaml:"seed" mapstructure:"seed"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// SinkConfig selects and configures the backend that receives farm records.
type SinkConfig struct {
	Driver      string      `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string      `yaml:"database_url" mapstructure:"database_url"`
	Table       string      `yaml:"table" mapstructure:"table"`
	REST        RESTConfig  `yaml:"rest" mapstructure:"rest"`
	Mongo       MongoConfig `yaml:"mongo" mapstructure:"mongo"`
}

// RESTConfig points at a PostgREST endpoint such as a Supabase project.
type RESTConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
	Key string `yaml:"key" mapstructure:"key"`
}

// MongoConfig configures the document store sink.
type MongoConfig struct {
	URI      string `yaml:"uri" mapstructure:"uri"`
	Database string `yaml:"database" mapstructure:"database"`
}

// GeocodeConfig configures the address geocoder.
type GeocodeConfig struct {
	Provider     string        `yaml:"provider" mapstructure:"provider"`
	BaseURL      string        `yaml:"base_url" mapstructure:"base_url"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	GoogleAPIKey string        `yaml:"google_api_key" mapstructure:"google_api_key"`
	Region       string        `yaml:"region" mapstructure:"region"`
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit    float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SeedConfig controls the seeding batch.
type SeedConfig struct {
	Pause     time.Duration `yaml:"pause" mapstructure:"pause"`
	LeadsFile string        `yaml:"leads_file" mapstructure:"leads_file"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml (optional) and SEEDER_* env vars.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SEEDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("sink.database_url", "SEEDER_SINK_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, eris.Wrap(err, "config: bind env")
	}

	// Defaults
	v.SetDefault("sink.driver", DriverPostGIS)
	v.SetDefault("sink.database_url", "")
	v.SetDefault("sink.table", "farms")
	v.SetDefault("sink.rest.url", "")
	v.SetDefault("sink.rest.key", "")
	v.SetDefault("sink.mongo.uri", "")
	v.SetDefault("sink.mongo.database", "plaasstop")
	v.SetDefault("geocode.provider", ProviderNominatim)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "plaasstop_seeder_v1")
	v.SetDefault("geocode.google_api_key", "")
	v.SetDefault("geocode.region", "")
	v.SetDefault("geocode.timeout", "10s")
	v.SetDefault("geocode.rate_limit", 1.0)
	v.SetDefault("seed.pause", "1500ms")
	v.SetDefault("seed.leads_file", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// The sqlite driver works out of the box against a local file.
	if cfg.Sink.Driver == DriverSQLite && cfg.Sink.DatabaseURL == "" {
		cfg.Sink.DatabaseURL = "farms.db"
	}

	return &cfg, nil
}

// Validate checks the keys a command needs. Mode is one of "seed",
// "migrate", "serve" or "leads".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "leads":
		return nil
	case "seed":
		errs = append(errs, c.validateSink()...)
		errs = append(errs, c.validateGeocode()...)
		if c.Seed.Pause < 0 {
			errs = append(errs, "seed.pause must be >= 0")
		}
	case "migrate":
		errs = append(errs, c.validateSink()...)
		switch c.Sink.Driver {
		case DriverREST, DriverMemory:
			errs = append(errs, fmt.Sprintf("sink.driver %q has no schema to migrate", c.Sink.Driver))
		}
	case "serve":
		errs = append(errs, c.validateSink()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateSink() []string {
	var errs []string
	if c.Sink.Table == "" {
		errs = append(errs, "sink.table is required (SEEDER_SINK_TABLE)")
	}
	switch c.Sink.Driver {
	case DriverPostGIS, DriverMySQL, DriverSQLite:
		if c.Sink.DatabaseURL == "" {
			errs = append(errs, "sink.database_url is required (DATABASE_URL or SEEDER_SINK_DATABASE_URL)")
		}
	case DriverREST:
		if c.Sink.REST.URL == "" {
			errs = append(errs, "sink.rest.url is required (SEEDER_SINK_REST_URL)")
		}
		if c.Sink.REST.Key == "" {
			errs = append(errs, "sink.rest.key is required (SEEDER_SINK_REST_KEY)")
		}
	case DriverMongo:
		if c.Sink.Mongo.URI == "" {
			errs = append(errs, "sink.mongo.uri is required (SEEDER_SINK_MONGO_URI)")
		}
		if c.Sink.Mongo.Database == "" {
			errs = append(errs, "sink.mongo.database is required (SEEDER_SINK_MONGO_DATABASE)")
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("sink.driver %q is not supported", c.Sink.Driver))
	}
	return errs
}

func (c *Config) validateGeocode() []string {
	var errs []string
	switch c.Geocode.Provider {
	case ProviderNominatim:
		if c.Geocode.UserAgent == "" {
			errs = append(errs, "geocode.user_agent is required by nominatim (SEEDER_GEOCODE_USER_AGENT)")
		}
	case ProviderGoogle:
		if c.Geocode.GoogleAPIKey == "" {
			errs = append(errs, "geocode.google_api_key is required (SEEDER_GEOCODE_GOOGLE_API_KEY)")
		}
	case ProviderCascade:
	default:
		errs = append(errs, fmt.Sprintf("geocode.provider %q is not supported", c.Geocode.Provider))
	}
	if r := c.Geocode.Region; r != "" && len(r) != 2 {
		errs = append(errs, fmt.Sprintf("geocode.region %q must be a two-letter country code", r))
	}
	if c.Geocode.Timeout <= 0 {
		errs = append(errs, "geocode.timeout must be > 0")
	}
	if c.Geocode.RateLimit <= 0 {
		errs = append(errs, "geocode.rate_limit must be > 0")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
