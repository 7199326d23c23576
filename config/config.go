package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const envPrefix = "CRIMEWATCH_"

type Config struct {
	Data     DataConfig     `yaml:"data"`
	Database DatabaseConfig `yaml:"database"`
	Artifact ArtifactConfig `yaml:"artifact"`
	Model    ModelConfig    `yaml:"model"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Cache    CacheConfig    `yaml:"cache"`
	Watch    WatchConfig    `yaml:"watch"`
}

// DataConfig selects where historical incidents are read from:
// csv, sqlite, mongo or postgres.
type DataConfig struct {
	Source  string `yaml:"source"`
	CSVPath string `yaml:"csv_path"`
}

type DatabaseConfig struct {
	SQLitePath      string `yaml:"sqlite_path"`
	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`
	PostgresDSN     string `yaml:"postgres_dsn"`
	PostgresTable   string `yaml:"postgres_table"`
	BatchSize       int    `yaml:"batch_size"`
}

// ArtifactConfig selects the artifact store: file, sqlite or redis.
type ArtifactConfig struct {
	Store         string `yaml:"store"`
	Dir           string `yaml:"dir"`
	Key           string `yaml:"key"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

type ModelConfig struct {
	Type            string  `yaml:"type"`
	NumTrees        int     `yaml:"num_trees"`
	MaxDepth        int     `yaml:"max_depth"`
	MinSamplesSplit int     `yaml:"min_samples_split"`
	MaxFeatures     int     `yaml:"max_features"`
	Seed            int64   `yaml:"seed"`
	TestRatio       float64 `yaml:"test_ratio"`
	Workers         int     `yaml:"workers"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	GzipMinSize    int           `yaml:"gzip_min_size"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type CacheConfig struct {
	PredictionSize int `yaml:"prediction_size"`
}

type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

func Default() *Config {
	return &Config{
		Data: DataConfig{
			Source:  "csv",
			CSVPath: "data/crime.csv",
		},
		Database: DatabaseConfig{
			SQLitePath:      "data/crimewatch.db",
			MongoDatabase:   "crime_dashboard",
			MongoCollection: "crime_data",
			PostgresTable:   "crimes",
			BatchSize:       1000,
		},
		Artifact: ArtifactConfig{
			Store: "file",
			Dir:   "models",
			Key:   "crime_model.json.gz",
		},
		Model: ModelConfig{
			Type:            "random_forest",
			NumTrees:        100,
			MinSamplesSplit: 2,
			Seed:            42,
			TestRatio:       0.2,
		},
		HTTP: HTTPConfig{
			Port:           8080,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			RequestTimeout: 10 * time.Second,
			MaxBodyBytes:   1 << 20,
			GzipMinSize:    1024,
			AllowedOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Cache: CacheConfig{PredictionSize: 4096},
		Watch: WatchConfig{Debounce: 500 * time.Millisecond},
	}
}

// Load applies defaults, then the YAML file at path (skipped when path is
// empty), then CRIMEWATCH_* environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DATA_SOURCE":      &c.Data.Source,
		"CSV_PATH":         &c.Data.CSVPath,
		"SQLITE_PATH":      &c.Database.SQLitePath,
		"MONGO_URI":        &c.Database.MongoURI,
		"MONGO_DATABASE":   &c.Database.MongoDatabase,
		"MONGO_COLLECTION": &c.Database.MongoCollection,
		"POSTGRES_DSN":     &c.Database.PostgresDSN,
		"POSTGRES_TABLE":   &c.Database.PostgresTable,
		"ARTIFACT_STORE":   &c.Artifact.Store,
		"ARTIFACT_DIR":     &c.Artifact.Dir,
		"ARTIFACT_KEY":     &c.Artifact.Key,
		"REDIS_ADDR":       &c.Artifact.RedisAddr,
		"REDIS_PASSWORD":   &c.Artifact.RedisPassword,
		"MODEL_TYPE":       &c.Model.Type,
		"LOG_LEVEL":        &c.Log.Level,
		"LOG_FORMAT":       &c.Log.Format,
		"LOG_FILE":         &c.Log.File,
	}
	for key, dst := range strs {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"HTTP_PORT":     &c.HTTP.Port,
		"GZIP_MIN_SIZE": &c.HTTP.GzipMinSize,
		"REDIS_DB":      &c.Artifact.RedisDB,
		"NUM_TREES":     &c.Model.NumTrees,
		"MAX_DEPTH":     &c.Model.MaxDepth,
		"CACHE_SIZE":    &c.Cache.PredictionSize,
		"BATCH_SIZE":    &c.Database.BatchSize,
		"TRAIN_WORKERS": &c.Model.Workers,
	}
	for key, dst := range ints {
		v, ok := lookup(envPrefix + key)
		if !ok {
			continue
		}
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
		}
		*dst = parsed
	}

	if v, ok := lookup(envPrefix + "SEED"); ok {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sSEED: %w", envPrefix, err)
		}
		c.Model.Seed = parsed
	}
	if v, ok := lookup(envPrefix + "WATCH"); ok {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sWATCH: %w", envPrefix, err)
		}
		c.Watch.Enabled = parsed
	}
	if v, ok := lookup(envPrefix + "ALLOWED_ORIGINS"); ok {
		c.HTTP.AllowedOrigins = strings.Split(v, ",")
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Data.Source {
	case "csv":
		if c.Data.CSVPath == "" {
			errs = append(errs, errors.New("data.csv_path is required for csv source"))
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("database.sqlite_path is required for sqlite source"))
		}
	case "mongo":
		if c.Database.MongoURI == "" {
			errs = append(errs, errors.New("database.mongo_uri is required for mongo source"))
		}
	case "postgres":
		if c.Database.PostgresDSN == "" {
			errs = append(errs, errors.New("database.postgres_dsn is required for postgres source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown data.source %q", c.Data.Source))
	}

	switch c.Artifact.Store {
	case "file":
		if c.Artifact.Dir == "" {
			errs = append(errs, errors.New("artifact.dir is required for file store"))
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("database.sqlite_path is required for sqlite artifact store"))
		}
	case "redis":
		if c.Artifact.RedisAddr == "" {
			errs = append(errs, errors.New("artifact.redis_addr is required for redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown artifact.store %q", c.Artifact.Store))
	}
	if c.Artifact.Key == "" {
		errs = append(errs, errors.New("artifact.key is required"))
	}

	if c.Model.Type != "random_forest" && c.Model.Type != "decision_tree" {
		errs = append(errs, fmt.Errorf("unknown model.type %q", c.Model.Type))
	}
	if c.Model.TestRatio < 0 || c.Model.TestRatio >= 1 {
		errs = append(errs, fmt.Errorf("model.test_ratio %v outside [0,1)", c.Model.TestRatio))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.GzipMinSize < 0 {
		errs = append(errs, fmt.Errorf("http.gzip_min_size %d is negative", c.HTTP.GzipMinSize))
	}
	if c.Database.BatchSize <= 0 {
		errs = append(errs, errors.New("database.batch_size must be positive"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	if c.Watch.Enabled && c.Artifact.Store != "file" {
		errs = append(errs, errors.New("watch.enabled requires the file artifact store"))
	}
	return errors.Join(errs...)
}
