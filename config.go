package tinyhttp

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds the server settings loadable from a YAML file.
//
//	addr: ":8080"
//	name: tinyhttpd
//	read_timeout: 10s
//	write_timeout: 10s
//	compress: true
//	log_level: debug
//
// Zero values leave the corresponding Server defaults in place.
type Config struct {
	Addr               string        `yaml:"addr"`
	Name               string        `yaml:"name"`
	MaxHeaderSize      int           `yaml:"max_header_size"`
	MaxRequestBodySize int           `yaml:"max_request_body_size"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	MaxConnsPerIP      int           `yaml:"max_conns_per_ip"`
	Concurrency        int           `yaml:"concurrency"`
	Compress           bool          `yaml:"compress"`
	ReusePort          bool          `yaml:"reuse_port"`
	Gnet               bool          `yaml:"gnet"`
	LogLevel           string        `yaml:"log_level"`
	LogAllErrors       bool          `yaml:"log_all_errors"`
}

// DefaultAddr is the listen address used if Config.Addr is empty.
const DefaultAddr = ":8080"

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Addr:     DefaultAddr,
		LogLevel: zerolog.InfoLevel.String(),
	}
}

// LoadConfig reads and validates the YAML configuration at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid config %q", path)
	}
	return cfg, nil
}

// ParseConfig parses and validates a YAML configuration.
//
// Fields missing from data keep their DefaultConfig values.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "cannot parse yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for out of range values.
func (cfg *Config) Validate() error {
	if len(cfg.Addr) == 0 {
		cfg.Addr = DefaultAddr
	}
	switch {
	case cfg.MaxHeaderSize < 0:
		return errors.Errorf("max_header_size must be positive, got %d", cfg.MaxHeaderSize)
	case cfg.MaxRequestBodySize < 0:
		return errors.Errorf("max_request_body_size must be positive, got %d", cfg.MaxRequestBodySize)
	case cfg.ReadTimeout < 0:
		return errors.Errorf("read_timeout must be positive, got %s", cfg.ReadTimeout)
	case cfg.WriteTimeout < 0:
		return errors.Errorf("write_timeout must be positive, got %s", cfg.WriteTimeout)
	case cfg.MaxConnsPerIP < 0:
		return errors.Errorf("max_conns_per_ip must be positive, got %d", cfg.MaxConnsPerIP)
	case cfg.Concurrency < 0:
		return errors.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	if _, err := cfg.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns the parsed log level. Info is used if LogLevel is empty.
func (cfg *Config) Level() (zerolog.Level, error) {
	if len(cfg.LogLevel) == 0 {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.NoLevel, errors.Wrapf(err, "invalid log_level %q", cfg.LogLevel)
	}
	return lvl, nil
}

// Apply copies the settings to s and sets s.Logger if it is nil.
func (cfg *Config) Apply(s *Server) {
	s.Name = cfg.Name
	s.MaxHeaderSize = cfg.MaxHeaderSize
	s.MaxRequestBodySize = cfg.MaxRequestBodySize
	s.ReadTimeout = cfg.ReadTimeout
	s.WriteTimeout = cfg.WriteTimeout
	s.MaxConnsPerIP = cfg.MaxConnsPerIP
	s.Concurrency = cfg.Concurrency
	s.Compress = cfg.Compress
	s.ReusePort = cfg.ReusePort
	s.LogAllErrors = cfg.LogAllErrors
	if s.Logger == nil {
		lvl, err := cfg.Level()
		if err != nil {
			lvl = zerolog.InfoLevel
		}
		s.Logger = NewLogger(lvl)
	}
}
