package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/safe-zone/internal/geo"
)

// Config is the top-level configuration for safe-zone.
type Config struct {
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Data     DataConfig     `yaml:"data" mapstructure:"data"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Location LocationConfig `yaml:"location" mapstructure:"location"`
	Tiles    TilesConfig    `yaml:"tiles" mapstructure:"tiles"`
	Retry    RetryConfig    `yaml:"retry" mapstructure:"retry"`
	Circuit  CircuitConfig  `yaml:"circuit" mapstructure:"circuit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// PublicURL is the externally reachable base used in /tile-url responses.
	PublicURL   string   `yaml:"public_url" mapstructure:"public_url"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // memory, sqlite, postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DataConfig locates seed, roster and hazard inputs.
type DataConfig struct {
	SeedPath      string `yaml:"seed_path" mapstructure:"seed_path"`
	NeighborsPath string `yaml:"neighbors_path" mapstructure:"neighbors_path"`
	HazardsPath   string `yaml:"hazards_path" mapstructure:"hazards_path"`
	HazardsURL    string `yaml:"hazards_url" mapstructure:"hazards_url"`
	CacheDir      string `yaml:"cache_dir" mapstructure:"cache_dir"`
}

// ScoringConfig holds the proximity radii in miles.
type ScoringConfig struct {
	NearbyRadiusMiles       float64 `yaml:"nearby_radius_miles" mapstructure:"nearby_radius_miles"`
	NeighborhoodRadiusMiles float64 `yaml:"neighborhood_radius_miles" mapstructure:"neighborhood_radius_miles"`
}

// LocationConfig configures the fallback location source. When Enabled is
// false, lookups without explicit coordinates fail with a permission error.
type LocationConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	DefaultLat float64       `yaml:"default_lat" mapstructure:"default_lat"`
	DefaultLon float64       `yaml:"default_lon" mapstructure:"default_lon"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// TilesConfig configures the map tile proxy. An empty UpstreamURL disables it.
type TilesConfig struct {
	UpstreamURL string        `yaml:"upstream_url" mapstructure:"upstream_url"`
	Format      string        `yaml:"format" mapstructure:"format"`
	CacheSize   int           `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTL    time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit   float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RetryConfig configures retries for outbound fetches.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig configures the tile upstream circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("SAFEZONE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key is registered so env overrides reach Unmarshal.
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("data.seed_path", "")
	v.SetDefault("data.neighbors_path", "")
	v.SetDefault("data.hazards_path", "")
	v.SetDefault("data.hazards_url", "")
	v.SetDefault("data.cache_dir", "data/cache")
	v.SetDefault("scoring.nearby_radius_miles", geo.DefaultNearbyRadiusMiles)
	v.SetDefault("scoring.neighborhood_radius_miles", geo.DefaultNeighborhoodRadiusMiles)
	v.SetDefault("location.enabled", true)
	v.SetDefault("location.default_lat", 37.7879)
	v.SetDefault("location.default_lon", -122.4314)
	v.SetDefault("location.timeout", 8*time.Second)
	v.SetDefault("tiles.upstream_url", "")
	v.SetDefault("tiles.format", "png")
	v.SetDefault("tiles.cache_size", 1024)
	v.SetDefault("tiles.cache_ttl", time.Hour)
	v.SetDefault("tiles.timeout", 10*time.Second)
	v.SetDefault("tiles.rate_limit", 20.0)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 250)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)

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

	return &cfg, nil
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, "store.driver must be one of memory, sqlite, postgres")
	}
	if c.Store.Driver == "sqlite" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for the sqlite driver")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Scoring.NearbyRadiusMiles < 0 {
		errs = append(errs, "scoring.nearby_radius_miles must be >= 0")
	}
	if c.Scoring.NeighborhoodRadiusMiles < 0 {
		errs = append(errs, "scoring.neighborhood_radius_miles must be >= 0")
	}
	if c.Location.DefaultLat < -90 || c.Location.DefaultLat > 90 {
		errs = append(errs, "location.default_lat must be within [-90, 90]")
	}
	if c.Location.DefaultLon < -180 || c.Location.DefaultLon > 180 {
		errs = append(errs, "location.default_lon must be within [-180, 180]")
	}
	if c.Location.Timeout < 0 {
		errs = append(errs, "location.timeout must be >= 0")
	}
	if c.Tiles.CacheSize < 0 {
		errs = append(errs, "tiles.cache_size must be >= 0")
	}
	if c.Tiles.RateLimit < 0 {
		errs = append(errs, "tiles.rate_limit must be >= 0")
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, "retry.max_attempts must be >= 0")
	}
	if c.Circuit.FailureThreshold < 0 {
		errs = append(errs, "circuit.failure_threshold must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger configures the global zap logger.
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
