package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tanq16/splitget/internal/utils"
	"gopkg.in/yaml.v3"
)

// Config holds the settings a download run can take from a file, the
// environment or flags.
type Config struct {
	Proc        int
	Dir         string
	Timeout     time.Duration
	KATimeout   time.Duration
	UserAgent   string
	Proxy       ProxyConfig
	Headers     map[string]string
	BearerToken string
	// Limit is the bandwidth cap in bytes per second, 0 for none.
	Limit int64
	S3    S3Config
}

type ProxyConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type S3Config struct {
	Profile         string `yaml:"profile"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

func Default() Config {
	return Config{
		Proc:      utils.DefaultSegments,
		Dir:       ".",
		Timeout:   3 * time.Minute,
		KATimeout: 90 * time.Second,
		UserAgent: utils.ToolUserAgent,
		Headers:   map[string]string{},
	}
}

// yamlConfig mirrors Config with durations and sizes as strings.
type yamlConfig struct {
	Proc             int               `yaml:"proc"`
	Dir              string            `yaml:"dir"`
	Timeout          string            `yaml:"timeout"`
	KeepAliveTimeout string            `yaml:"keep_alive_timeout"`
	UserAgent        string            `yaml:"user_agent"`
	Proxy            ProxyConfig       `yaml:"proxy"`
	Headers          map[string]string `yaml:"headers"`
	BearerToken      string            `yaml:"bearer_token"`
	Limit            string            `yaml:"limit"`
	S3               S3Config          `yaml:"s3"`
}

// DefaultPath is $XDG_CONFIG_HOME/splitget/config.yaml, falling back to the
// platform config directory.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		dir, err = os.UserConfigDir()
		if err != nil {
			return ""
		}
	}
	return filepath.Join(dir, "splitget", "config.yaml")
}

// Load reads path, or the default path when path is empty. A missing
// default file yields the defaults; a missing explicit file is an error.
func Load(path string) (Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	path = DefaultPath()
	if path == "" {
		return Default(), nil
	}
	cfg, err := LoadFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	if yc.Proc != 0 {
		cfg.Proc = yc.Proc
	}
	if yc.Dir != "" {
		cfg.Dir = yc.Dir
	}
	if yc.Timeout != "" {
		d, err := time.ParseDuration(yc.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeout: %w", err)
		}
		cfg.Timeout = d
	}
	if yc.KeepAliveTimeout != "" {
		d, err := time.ParseDuration(yc.KeepAliveTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse keep_alive_timeout: %w", err)
		}
		cfg.KATimeout = d
	}
	if yc.UserAgent != "" {
		cfg.UserAgent = yc.UserAgent
	}
	cfg.Proxy = yc.Proxy
	for k, v := range yc.Headers {
		cfg.Headers[k] = v
	}
	cfg.BearerToken = yc.BearerToken
	if yc.Limit != "" {
		limit, err := utils.ParseBytes(yc.Limit)
		if err != nil {
			return Config{}, fmt.Errorf("parse limit: %w", err)
		}
		cfg.Limit = limit
	}
	cfg.S3 = yc.S3
	return cfg, nil
}

// LoadFromEnv applies SPLITGET_ environment variables on top of c.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("SPLITGET_PROC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse SPLITGET_PROC: %w", err)
		}
		c.Proc = n
	}
	if v := os.Getenv("SPLITGET_DIR"); v != "" {
		c.Dir = v
	}
	if v := os.Getenv("SPLITGET_LIMIT"); v != "" {
		limit, err := utils.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse SPLITGET_LIMIT: %w", err)
		}
		c.Limit = limit
	}
	if v := os.Getenv("SPLITGET_BEARER_TOKEN"); v != "" {
		c.BearerToken = v
	}
	if v := os.Getenv("SPLITGET_PROXY"); v != "" {
		c.Proxy.URL = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Proc < 1 {
		return errors.New("config: proc must be at least 1")
	}
	if c.Limit < 0 {
		return errors.New("config: limit must not be negative")
	}
	if c.Timeout < 0 || c.KATimeout < 0 {
		return errors.New("config: timeouts must not be negative")
	}
	return nil
}

// HTTPClientConfig converts the HTTP related settings.
func (c *Config) HTTPClientConfig() utils.HTTPClientConfig {
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		headers[k] = v
	}
	return utils.HTTPClientConfig{
		Timeout:        c.Timeout,
		KATimeout:      c.KATimeout,
		ProxyURL:       c.Proxy.URL,
		ProxyUsername:  c.Proxy.Username,
		ProxyPassword:  c.Proxy.Password,
		UserAgent:      c.UserAgent,
		Headers:        headers,
		BearerToken:    c.BearerToken,
		HighThreadMode: c.Proc > 5,
	}
}
