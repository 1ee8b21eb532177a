// Package config loads runtime settings from defaults, an optional override
// file (YAML, JSON or TOML) and environment variables, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Cache index backends.
const (
	IndexFile     = "file"
	IndexDynamoDB = "dynamodb"
)

// Default configuration values. See [Config] for field descriptions.
const (
	DefaultCredentialsParam = "/drivemirror/service-account"
	DefaultCacheZone        = "default"
	DefaultListsTTL         = 300
	DefaultFilesTTL         = 0
	DefaultCacheIndex       = IndexFile
	DefaultCacheTable       = "DriveMirrorCache"
	DefaultJWTSecretParam   = "/drivemirror/jwt-secret"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultListenAddr       = ":8080"
)

// Config holds the settings shared by the CLI, the local server and the Lambda.
type Config struct {
	CredentialsFile  string // Service account JSON file; takes precedence over CredentialsParam
	CredentialsParam string // SSM parameter (or env secret) holding the service account JSON
	CacheRoot        string // Directory holding cached blobs (Default <user cache dir>/drivemirror)
	CacheZone        string // Cache namespace of this client (Default "default")
	ListsTTL         int    // Listing TTL in seconds, 0 never expires, <0 disables (Default 300)
	FilesTTL         int    // File content TTL in seconds, 0 never expires, <0 disables (Default 0)
	DownloadTimeout  int    // Upper bound in seconds for one file download, 0 leaves it to the transport (Default 0)
	CacheIndex       string // "file" or "dynamodb" (Default "file")
	CacheTable       string // DynamoDB table for the "dynamodb" index
	CacheOwner       string // Owner id of this host's records in the shared table (Default random per process)
	JWTSecretParam   string // SSM parameter holding the HTTP surface's JWT secret
	ListenAddr       string // Local server listen address (Default ":8080")
	DevMode          bool   // Serve an in-memory remote and resolve secrets from env
	LogLevel         string // debug, info, warn, error (Default info)
	LogFormat        string // json or console (Default json)
}

// ConfigOverride uses pointer fields to distinguish between unset and zero
// values when loading a partial configuration file.
type ConfigOverride struct {
	CredentialsFile  *string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty" toml:"credentials_file"`
	CredentialsParam *string `yaml:"credentials_param,omitempty" json:"credentials_param,omitempty" toml:"credentials_param"`
	CacheRoot        *string `yaml:"cache_root,omitempty" json:"cache_root,omitempty" toml:"cache_root"`
	CacheZone        *string `yaml:"cache_zone,omitempty" json:"cache_zone,omitempty" toml:"cache_zone"`
	ListsTTL         *int    `yaml:"lists_ttl,omitempty" json:"lists_ttl,omitempty" toml:"lists_ttl"`
	FilesTTL         *int    `yaml:"files_ttl,omitempty" json:"files_ttl,omitempty" toml:"files_ttl"`
	DownloadTimeout  *int    `yaml:"download_timeout,omitempty" json:"download_timeout,omitempty" toml:"download_timeout"`
	CacheIndex       *string `yaml:"cache_index,omitempty" json:"cache_index,omitempty" toml:"cache_index"`
	CacheTable       *string `yaml:"cache_table,omitempty" json:"cache_table,omitempty" toml:"cache_table"`
	CacheOwner       *string `yaml:"cache_owner,omitempty" json:"cache_owner,omitempty" toml:"cache_owner"`
	JWTSecretParam   *string `yaml:"jwt_secret_param,omitempty" json:"jwt_secret_param,omitempty" toml:"jwt_secret_param"`
	ListenAddr       *string `yaml:"listen_addr,omitempty" json:"listen_addr,omitempty" toml:"listen_addr"`
	DevMode          *bool   `yaml:"dev_mode,omitempty" json:"dev_mode,omitempty" toml:"dev_mode"`
	LogLevel         *string `yaml:"log_level,omitempty" json:"log_level,omitempty" toml:"log_level"`
	LogFormat        *string `yaml:"log_format,omitempty" json:"log_format,omitempty" toml:"log_format"`
}

// NewDefaultConfig creates a Config with all default values.
func NewDefaultConfig() *Config {
	root := filepath.Join(os.TempDir(), "drivemirror")
	if dir, err := os.UserCacheDir(); err == nil {
		root = filepath.Join(dir, "drivemirror")
	}
	return &Config{
		CredentialsParam: DefaultCredentialsParam,
		CacheRoot:        root,
		CacheZone:        DefaultCacheZone,
		ListsTTL:         DefaultListsTTL,
		FilesTTL:         DefaultFilesTTL,
		CacheIndex:       DefaultCacheIndex,
		CacheTable:       DefaultCacheTable,
		JWTSecretParam:   DefaultJWTSecretParam,
		ListenAddr:       DefaultListenAddr,
		LogLevel:         DefaultLogLevel,
		LogFormat:        DefaultLogFormat,
	}
}

// Merge applies non-nil values from override onto c.
func (c *Config) Merge(override *ConfigOverride) {
	if override == nil {
		return
	}
	setString(&c.CredentialsFile, override.CredentialsFile)
	setString(&c.CredentialsParam, override.CredentialsParam)
	setString(&c.CacheRoot, override.CacheRoot)
	setString(&c.CacheZone, override.CacheZone)
	if override.ListsTTL != nil {
		c.ListsTTL = *override.ListsTTL
	}
	if override.FilesTTL != nil {
		c.FilesTTL = *override.FilesTTL
	}
	if override.DownloadTimeout != nil {
		c.DownloadTimeout = *override.DownloadTimeout
	}
	setString(&c.CacheIndex, override.CacheIndex)
	setString(&c.CacheTable, override.CacheTable)
	setString(&c.CacheOwner, override.CacheOwner)
	setString(&c.JWTSecretParam, override.JWTSecretParam)
	setString(&c.ListenAddr, override.ListenAddr)
	if override.DevMode != nil {
		c.DevMode = *override.DevMode
	}
	setString(&c.LogLevel, override.LogLevel)
	setString(&c.LogFormat, override.LogFormat)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// LoadConfigOverrideFile loads overrides from a file without merging.
// The format follows the extension: .yaml/.yml, .json or .toml.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &override)
	case ".json":
		err = json.Unmarshal(data, &override)
	case ".toml":
		err = toml.Unmarshal(data, &override)
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}
	return &override, nil
}

// envOverride reads the environment variables that override file settings.
// getenv returns "" for unset variables.
func envOverride(getenv func(string) string) (*ConfigOverride, error) {
	var o ConfigOverride
	str := func(name string) *string {
		if v := getenv(name); v != "" {
			return &v
		}
		return nil
	}
	num := func(name string) (*int, error) {
		v := getenv(name)
		if v == "" {
			return nil, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		return &n, nil
	}

	var err error
	o.CredentialsFile = str("GOOGLE_APPLICATION_CREDENTIALS")
	o.CredentialsParam = str("SERVICE_ACCOUNT_PARAM")
	o.CacheRoot = str("CACHE_ROOT")
	o.CacheZone = str("CACHE_ZONE")
	if o.ListsTTL, err = num("LISTS_TTL"); err != nil {
		return nil, err
	}
	if o.FilesTTL, err = num("FILES_TTL"); err != nil {
		return nil, err
	}
	if o.DownloadTimeout, err = num("DOWNLOAD_TIMEOUT"); err != nil {
		return nil, err
	}
	o.CacheIndex = str("CACHE_INDEX")
	o.CacheTable = str("CACHE_TABLE")
	o.CacheOwner = str("CACHE_OWNER")
	o.JWTSecretParam = str("JWT_SECRET_PARAM")
	o.ListenAddr = str("LISTEN_ADDR")
	if v := getenv("DEV_MODE"); v != "" {
		dev := v == "true"
		o.DevMode = &dev
	}
	o.LogLevel = str("LOG_LEVEL")
	o.LogFormat = str("LOG_FORMAT")
	return &o, nil
}

// Load builds a Config from defaults, the file at path (skipped when path
// is empty) and the environment.
func Load(path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := NewDefaultConfig()
	if path != "" {
		override, err := LoadConfigOverrideFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Merge(override)
	}

	override, err := envOverride(getenv)
	if err != nil {
		return nil, err
	}
	cfg.Merge(override)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.CacheZone == "" {
		return fmt.Errorf("cache zone is empty")
	}
	if c.DownloadTimeout < 0 {
		return fmt.Errorf("download timeout %d is negative", c.DownloadTimeout)
	}
	switch c.CacheIndex {
	case IndexFile:
	case IndexDynamoDB:
		if c.CacheTable == "" {
			return fmt.Errorf("cache index %q requires a table name", c.CacheIndex)
		}
	default:
		return fmt.Errorf("unknown cache index %q", c.CacheIndex)
	}
	return nil
}
