package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opensource-legal/covenant/internal/domain"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "covenant.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestFromEnv(t *testing.T) {
	t.Run("DefaultsToCommunity", func(t *testing.T) {
		t.Setenv("COVENANT_TIER", "")

		cfg := FromEnv()
		if cfg.Tier != domain.TierCommunity {
			t.Errorf("expected community tier, got %s", cfg.Tier)
		}
		if cfg.Repository.Driver != "sqlite" {
			t.Errorf("expected sqlite driver, got %s", cfg.Repository.Driver)
		}
	})

	t.Run("ProTier", func(t *testing.T) {
		t.Setenv("COVENANT_TIER", "pro")

		cfg := FromEnv()
		if cfg.Tier != domain.TierPro {
			t.Errorf("expected pro tier, got %s", cfg.Tier)
		}
		if cfg.Repository.Driver != "postgres" {
			t.Errorf("expected postgres driver, got %s", cfg.Repository.Driver)
		}
		if cfg.EventBus.Type != "nats" {
			t.Errorf("expected nats bus, got %s", cfg.EventBus.Type)
		}
	})
}

func TestLoad(t *testing.T) {
	t.Setenv("COVENANT_TIER", "")

	t.Run("EmptyPathReturnsDefaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
		}
	})

	t.Run("FileOverridesDefaults", func(t *testing.T) {
		path := writeConfigFile(t, `
server:
  port: 9090
logging:
  level: debug
engine:
  critical_cap: 30
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug level, got %s", cfg.Logging.Level)
		}
		if cfg.Engine.CriticalCap != 30 {
			t.Errorf("expected critical cap 30, got %d", cfg.Engine.CriticalCap)
		}
		// Untouched defaults survive the overlay.
		if cfg.Repository.Driver != "sqlite" {
			t.Errorf("expected sqlite driver, got %s", cfg.Repository.Driver)
		}
		if cfg.Engine.MaxScore != 100 {
			t.Errorf("expected max score 100, got %d", cfg.Engine.MaxScore)
		}
	})

	t.Run("ExpandsEnvironmentVariables", func(t *testing.T) {
		t.Setenv("COVENANT_TEST_DB", "/tmp/from-env.db")

		path := writeConfigFile(t, `
repository:
  driver: sqlite
  sqlite_path: ${COVENANT_TEST_DB}
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Repository.SQLitePath != "/tmp/from-env.db" {
			t.Errorf("expected expanded path, got %s", cfg.Repository.SQLitePath)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		if err == nil {
			t.Fatal("expected error for missing file")
		}
	})

	t.Run("MalformedYAML", func(t *testing.T) {
		path := writeConfigFile(t, "server: [not a map")
		_, err := Load(path)
		if err == nil {
			t.Fatal("expected error for malformed YAML")
		}
	})

	t.Run("InvalidValuesRejected", func(t *testing.T) {
		path := writeConfigFile(t, `
server:
  port: -1
`)
		_, err := Load(path)
		if err == nil || !strings.Contains(err.Error(), "port") {
			t.Fatalf("expected port validation error, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*domain.Config)
		wantErr string
	}{
		{"Valid", func(c *domain.Config) {}, ""},
		{"BadDriver", func(c *domain.Config) { c.Repository.Driver = "oracle" }, "driver"},
		{"SQLiteWithoutPath", func(c *domain.Config) { c.Repository.SQLitePath = "" }, "path"},
		{"BadCacheType", func(c *domain.Config) { c.Cache.Type = "memcached" }, "cache"},
		{"RedisWithoutAddr", func(c *domain.Config) {
			c.Cache.Type = "redis"
			c.Cache.RedisAddr = ""
		}, "address"},
		{"BadBusType", func(c *domain.Config) { c.EventBus.Type = "kafka" }, "event bus"},
		{"NATSWithoutURL", func(c *domain.Config) {
			c.EventBus.Type = "nats"
			c.EventBus.NATSUrl = ""
		}, "URL"},
		{"BadLogLevel", func(c *domain.Config) { c.Logging.Level = "verbose" }, "log level"},
		{"BadTier", func(c *domain.Config) { c.Tier = "enterprise" }, "tier"},
		{"ZeroMaxScore", func(c *domain.Config) { c.Engine.MaxScore = 0 }, "max_score"},
		{"ConfidenceOutOfRange", func(c *domain.Config) { c.Engine.RequiredConfidence = 1.5 }, "required_confidence"},
		{"CapAboveMax", func(c *domain.Config) { c.Engine.CriticalCap = 150 }, "critical_cap"},
		{"InvertedThresholds", func(c *domain.Config) {
			c.Engine.ReviewMin = 90
			c.Engine.CompliantMin = 80
		}, "review_min"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tc.mutate(cfg)

			err := Validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
