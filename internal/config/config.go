// Package config loads launcher settings from a YAML, JSON or TOML file and
// BUTTER_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/distantorigin/butter-launcher/internal/catalog"
	"github.com/distantorigin/butter-launcher/internal/jre"
	"github.com/distantorigin/butter-launcher/internal/launch"
	"github.com/distantorigin/butter-launcher/internal/patch"
)

const (
	// DefaultPatchBaseURL serves <os>/<arch>/<channel>/0/<n>.pwr
	DefaultPatchBaseURL = "https://game-patches.hytale.com/patches"

	DefaultHTTPTimeout = "30s"
	DefaultLogLevel    = "info"

	// EnvPrefix prefixes every environment override
	EnvPrefix = "BUTTER_"
)

// Config holds every launcher setting. Zero values in a file leave the
// default in place.
type Config struct {
	BaseDir string `json:"base_dir" yaml:"base_dir" toml:"base_dir"`

	CatalogURL   string `json:"catalog_url" yaml:"catalog_url" toml:"catalog_url"`
	DownloadsURL string `json:"downloads_url" yaml:"downloads_url" toml:"downloads_url"`
	PatchBaseURL string `json:"patch_base_url" yaml:"patch_base_url" toml:"patch_base_url"`

	PatchTool    string `json:"patch_tool" yaml:"patch_tool" toml:"patch_tool"`
	PatchToolURL string `json:"patch_tool_url" yaml:"patch_tool_url" toml:"patch_tool_url"`
	StrictExit   bool   `json:"strict_exit" yaml:"strict_exit" toml:"strict_exit"`
	JREURL       string `json:"jre_url" yaml:"jre_url" toml:"jre_url"`

	ProbeCap         int    `json:"probe_cap" yaml:"probe_cap" toml:"probe_cap"`
	ProbeConcurrency int    `json:"probe_concurrency" yaml:"probe_concurrency" toml:"probe_concurrency"`
	FetchRetries     int    `json:"fetch_retries" yaml:"fetch_retries" toml:"fetch_retries"`
	HTTPTimeout      string `json:"http_timeout" yaml:"http_timeout" toml:"http_timeout"`

	LaunchAttempts int    `json:"launch_attempts" yaml:"launch_attempts" toml:"launch_attempts"`
	Username       string `json:"username" yaml:"username" toml:"username"`
	Identity       string `json:"identity" yaml:"identity" toml:"identity"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file" toml:"log_file"`
}

// DefaultBaseDir is <user config dir>/butter-launcher, or a directory next
// to the working directory when no config dir is known
func DefaultBaseDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "butter-launcher"
	}
	return filepath.Join(dir, "butter-launcher")
}

// Default returns a working configuration
func Default() Config {
	return Config{
		BaseDir:          DefaultBaseDir(),
		PatchBaseURL:     DefaultPatchBaseURL,
		PatchToolURL:     patch.DefaultToolURL,
		StrictExit:       true,
		JREURL:           jre.DefaultURL,
		ProbeCap:         catalog.DefaultProbeCap,
		ProbeConcurrency: catalog.DefaultProbeConcurrency,
		FetchRetries:     catalog.DefaultFetchRetries,
		HTTPTimeout:      DefaultHTTPTimeout,
		LaunchAttempts:   launch.DefaultAttempts,
		LogLevel:         DefaultLogLevel,
	}
}

// getenv is swapped in tests
var getenv = os.Getenv

// Load builds the configuration: defaults, then the file at path (when
// given), then environment overrides
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, c)
	case ".json":
		err = json.Unmarshal(b, c)
	case ".toml":
		err = toml.Unmarshal(b, c)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	log.Debugf("loaded config from %s", path)
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"BASE_DIR":       &c.BaseDir,
		"CATALOG_URL":    &c.CatalogURL,
		"DOWNLOADS_URL":  &c.DownloadsURL,
		"PATCH_BASE_URL": &c.PatchBaseURL,
		"PATCH_TOOL":     &c.PatchTool,
		"PATCH_TOOL_URL": &c.PatchToolURL,
		"JRE_URL":        &c.JREURL,
		"HTTP_TIMEOUT":   &c.HTTPTimeout,
		"USERNAME":       &c.Username,
		"IDENTITY":       &c.Identity,
		"LOG_LEVEL":      &c.LogLevel,
		"LOG_FILE":       &c.LogFile,
	}
	for name, dst := range strs {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PROBE_CAP":         &c.ProbeCap,
		"PROBE_CONCURRENCY": &c.ProbeConcurrency,
		"FETCH_RETRIES":     &c.FetchRetries,
		"LAUNCH_ATTEMPTS":   &c.LaunchAttempts,
	}
	for name, dst := range ints {
		v := getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}

	if v := getenv(EnvPrefix + "STRICT_EXIT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sSTRICT_EXIT: %w", EnvPrefix, err)
		}
		c.StrictExit = b
	}
	return nil
}

// Validate rejects settings the launcher cannot work with
func (c Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir must not be empty")
	}

	urls := map[string]string{
		"catalog_url":    c.CatalogURL,
		"downloads_url":  c.DownloadsURL,
		"patch_base_url": c.PatchBaseURL,
	}
	for name, raw := range urls {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s %q", name, raw)
		}
	}
	if c.PatchBaseURL == "" {
		return fmt.Errorf("patch_base_url must not be empty")
	}

	if c.ProbeCap < 0 || c.ProbeConcurrency < 0 || c.FetchRetries < 0 || c.LaunchAttempts < 0 {
		return fmt.Errorf("probe_cap, probe_concurrency, fetch_retries and launch_attempts must not be negative")
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	return nil
}

// Timeout parses HTTPTimeout; empty means no timeout
func (c Config) Timeout() (time.Duration, error) {
	if c.HTTPTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid http_timeout %q", c.HTTPTimeout)
	}
	return d, nil
}

// Catalog returns the resolver settings derived from c
func (c Config) Catalog(cacheDir string) catalog.Config {
	return catalog.Config{
		CatalogURL:       c.CatalogURL,
		DownloadsURL:     strings.TrimRight(c.DownloadsURL, "/"),
		PatchBaseURL:     strings.TrimRight(c.PatchBaseURL, "/"),
		CacheDir:         cacheDir,
		ProbeCap:         c.ProbeCap,
		ProbeConcurrency: c.ProbeConcurrency,
		FetchRetries:     uint64(c.FetchRetries),
	}
}
