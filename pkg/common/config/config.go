package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/quidditch/esdsl/pkg/dsl/compiler"
)

// Config holds configuration for the esdsl tools and service
type Config struct {
	Addresses        []string
	Username         string
	Password         string
	Index            string
	EngineVersion    string
	BindAddr         string
	RESTPort         int
	SchemaFile       string
	LogLevel         string
	RequestTimeout   time.Duration
	MappingCacheSize int
}

// Load loads configuration from cfgFile, or from esdsl.yaml on the default
// search paths when cfgFile is empty. A missing default file is not an
// error. ESDSL_ environment variables override file values.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("addresses", []string{"http://localhost:9200"})
	v.SetDefault("index", "")
	v.SetDefault("engine_version", compiler.V1.String())
	v.SetDefault("bind_addr", "0.0.0.0")
	v.SetDefault("rest_port", 9280)
	v.SetDefault("schema_file", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("mapping_cache_size", 128)

	// Load config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("esdsl")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/esdsl/")
		v.AddConfigPath("$HOME/.esdsl/")
		v.AddConfigPath(".")
	}

	// Read environment variables
	v.SetEnvPrefix("ESDSL")
	v.AutomaticEnv()
	// Keys without a default are invisible to AutomaticEnv unless bound.
	for _, key := range []string{"username", "password"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Addresses:        splitAddresses(v.GetStringSlice("addresses")),
		Username:         v.GetString("username"),
		Password:         v.GetString("password"),
		Index:            v.GetString("index"),
		EngineVersion:    v.GetString("engine_version"),
		BindAddr:         v.GetString("bind_addr"),
		RESTPort:         v.GetInt("rest_port"),
		SchemaFile:       v.GetString("schema_file"),
		LogLevel:         v.GetString("log_level"),
		RequestTimeout:   v.GetDuration("request_timeout"),
		MappingCacheSize: v.GetInt("mapping_cache_size"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	if len(c.Addresses) == 0 {
		return errors.New("config: at least one address is required")
	}
	if _, err := compiler.ParseVersion(c.EngineVersion); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.RESTPort <= 0 || c.RESTPort > 65535 {
		return fmt.Errorf("config: invalid rest_port %d", c.RESTPort)
	}
	if c.MappingCacheSize <= 0 {
		return fmt.Errorf("config: mapping_cache_size must be positive, got %d", c.MappingCacheSize)
	}
	return nil
}

// Version returns the configured engine version.
func (c *Config) Version() compiler.Version {
	v, _ := compiler.ParseVersion(c.EngineVersion)
	return v
}

// splitAddresses accepts both list values and a comma separated string,
// the form addresses take in the environment.
func splitAddresses(values []string) []string {
	var out []string
	for _, v := range values {
		for _, addr := range strings.Split(v, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				out = append(out, addr)
			}
		}
	}
	return out
}
