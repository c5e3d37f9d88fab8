package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.GetListen())
	assert.Equal(t, "listeria.db", cfg.GetDBPath())
	assert.Equal(t, StoreSQLite, cfg.GetStore())
	assert.Equal(t, 28, cfg.GetWindowDays())
	assert.Equal(t, 12*time.Hour, cfg.GetSessionTTL())
	assert.Equal(t, "lab_results", cfg.Mongo.Collection)

	p, err := cfg.FloorPlanPath("fresh")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("static", "fresh_floor_plan.png"), p)
}

func TestLoadYAMLFile(t *testing.T) {
	path := writeFile(t, "listeria.yaml", `
listen: 127.0.0.1:9000
window_days: 14
session_ttl: 30m
floor_plan_dir: /srv/plans
floor_plans:
  smoked: smokehouse.png
`)
	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.GetListen())
	assert.Equal(t, 14, cfg.GetWindowDays())
	assert.Equal(t, 30*time.Minute, cfg.GetSessionTTL())

	p, err := cfg.FloorPlanPath("smoked")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/plans", "smokehouse.png"), p)

	_, err = cfg.FloorPlanPath("lobby")
	assert.Error(t, err)
}

func TestLoadJSONFile(t *testing.T) {
	path := writeFile(t, "listeria.json", `{"store": "mongo", "mongo": {"uri": "mongodb://localhost:27017", "database": "qa"}}`)
	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, StoreMongo, cfg.GetStore())
	assert.Equal(t, "qa", cfg.Mongo.Database)
	assert.Equal(t, "lab_results", cfg.Mongo.Collection)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LISTERIA_WINDOW_DAYS", "7")
	t.Setenv("LISTERIA_MONGO_DATABASE", "from-env")
	path := writeFile(t, "listeria.yaml", "window_days: 14\n")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.GetWindowDays())
	assert.Equal(t, "from-env", cfg.Mongo.Database)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	_, err := Load(viper.New(), writeFile(t, "listeria.toml", "listen = ':1'"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extension")

	_, err = Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	big := writeFile(t, "big.yaml", "# "+strings.Repeat("x", maxFileSize+1))
	_, err = Load(viper.New(), big)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero config", Config{}, false},
		{"unknown store", Config{Store: "postgres"}, true},
		{"mongo without uri", Config{Store: StoreMongo}, true},
		{"mongo with uri", Config{Store: "MONGO", Mongo: MongoConfig{URI: "mongodb://db"}}, false},
		{"negative window", Config{WindowDays: -1}, true},
		{"bad ttl", Config{SessionTTL: "soon"}, true},
		{"zero ttl", Config{SessionTTL: "0s"}, true},
		{"short secret", Config{SessionSecret: "hunter2"}, true},
		{"long secret", Config{SessionSecret: strings.Repeat("k", 32)}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
