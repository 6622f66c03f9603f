package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// Degenerate geometry policies
const (
	DegenerateFail = "fail"
	DegenerateSkip = "skip"
)

// Config holds the global configuration shared by all commands
type Config struct {
	// Storage settings
	DataDir string `yaml:"data_dir"`
	Driver  string `yaml:"driver"`

	// PostgreSQL settings (driver = pgx)
	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBName     string `yaml:"db_name"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`

	// Processing settings
	Workers    int    `yaml:"workers"`
	BatchSize  int    `yaml:"batch_size"`
	Degenerate string `yaml:"degenerate"`

	// Logging and metrics
	Verbose         bool          `yaml:"verbose"`
	LogFile         string        `yaml:"log_file"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// DefaultDataDir returns the per-user directory that holds dataset files.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "osmpoi")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "osmpoi")
	}
	return "osmpoi_data"
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		DataDir:         DefaultDataDir(),
		Driver:          DriverSQLite,
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "osm",
		DBUser:          "postgres",
		Workers:         runtime.NumCPU(),
		BatchSize:       10000,
		Degenerate:      DegenerateFail,
		MetricsInterval: 0,
	}
}

// LoadFile overlays values from a YAML file onto c. Keys missing from the
// file keep their current value.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string whose search_path
// points at the given schema.
func (c *Config) ConnectionString(schema string) string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	if schema != "" {
		connStr += fmt.Sprintf(" search_path=%s", schema)
	}
	return connStr
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown driver %q (want %s or %s)", c.Driver, DriverSQLite, DriverPostgres)
	}
	switch c.Degenerate {
	case DegenerateFail, DegenerateSkip:
	default:
		return fmt.Errorf("unknown degenerate policy %q (want %s or %s)", c.Degenerate, DegenerateFail, DegenerateSkip)
	}
	if c.Driver == DriverSQLite && c.DataDir == "" {
		return fmt.Errorf("data dir is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if c.MetricsInterval < 0 {
		return fmt.Errorf("metrics interval must not be negative")
	}
	return nil
}
