package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(name string) string { return vars[name] }
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("", env(nil))
	require.NoError(t, err)
	assert.Equal(t, NewDefaultConfig(), cfg, "must use default values when nothing is overridden")
	assert.Equal(t, DefaultListsTTL, cfg.ListsTTL)
	assert.Equal(t, IndexFile, cfg.CacheIndex)
}

func TestLoad_FileFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "config.yaml", "cache_zone: team\nlists_ttl: 0\nfiles_ttl: -1\ndev_mode: true\n"},
		{"yml", "config.yml", "cache_zone: team\nlists_ttl: 0\nfiles_ttl: -1\ndev_mode: true\n"},
		{"json", "config.json", `{"cache_zone":"team","lists_ttl":0,"files_ttl":-1,"dev_mode":true}`},
		{"toml", "config.toml", "cache_zone = \"team\"\nlists_ttl = 0\nfiles_ttl = -1\ndev_mode = true\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Load(writeFile(t, tt.file, tt.content), env(nil))
			require.NoError(t, err)

			assert.Equal(t, "team", cfg.CacheZone)
			assert.Equal(t, 0, cfg.ListsTTL, "explicit zero overrides the default")
			assert.Equal(t, -1, cfg.FilesTTL)
			assert.True(t, cfg.DevMode)
			assert.Equal(t, DefaultCacheIndex, cfg.CacheIndex, "unset fields keep their default")
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "config.yaml", "cache_zone: from-file\nlists_ttl: 10\ncache_root: /srv/cache\ncache_owner: worker-1\n")
	cfg, err := Load(path, env(map[string]string{
		"CACHE_ZONE":                     "from-env",
		"FILES_TTL":                      "3600",
		"GOOGLE_APPLICATION_CREDENTIALS": "/etc/sa.json",
		"DEV_MODE":                       "false",
		"CACHE_OWNER":                    "worker-2",
		"DOWNLOAD_TIMEOUT":               "90",
	}))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.CacheZone)
	assert.Equal(t, 10, cfg.ListsTTL)
	assert.Equal(t, 3600, cfg.FilesTTL)
	assert.Equal(t, "/srv/cache", cfg.CacheRoot)
	assert.Equal(t, "/etc/sa.json", cfg.CredentialsFile)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "worker-2", cfg.CacheOwner)
	assert.Equal(t, 90, cfg.DownloadTimeout)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), env(nil))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeFile(t, "config.ini", "x=1"), env(nil))
	assert.ErrorContains(t, err, "unknown config file extension")

	_, err = Load(writeFile(t, "config.json", "{"), env(nil))
	assert.ErrorContains(t, err, "failed to unmarshal config file")

	_, err = Load("", env(map[string]string{"LISTS_TTL": "soon"}))
	assert.ErrorContains(t, err, "invalid LISTS_TTL")

	_, err = Load("", env(map[string]string{"DOWNLOAD_TIMEOUT": "-5"}))
	assert.ErrorContains(t, err, "download timeout")

	_, err = Load("", env(map[string]string{"CACHE_INDEX": "redis"}))
	assert.ErrorContains(t, err, "unknown cache index")
}

func TestValidate_DynamoDBNeedsTable(t *testing.T) {
	t.Parallel()

	cfg := NewDefaultConfig()
	cfg.CacheIndex = IndexDynamoDB
	assert.NoError(t, cfg.Validate())

	cfg.CacheTable = ""
	assert.Error(t, cfg.Validate())

	cfg = NewDefaultConfig()
	cfg.CacheZone = ""
	assert.Error(t, cfg.Validate())
}

func TestMerge_Nil(t *testing.T) {
	t.Parallel()

	cfg := NewDefaultConfig()
	cfg.Merge(nil)
	assert.Equal(t, NewDefaultConfig(), cfg)
}
