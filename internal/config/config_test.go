package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DB_DRIVER", "SERVER_PORT", "ALLOWED_ORIGINS", "REALTIME_ENABLED", "NOTIFY_THROTTLE", "NOTIFY_TIMEOUT", "NOTICE_QUEUE"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.DBDriver != "mysql" {
		t.Errorf("Expected default driver mysql, got %q", cfg.DBDriver)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("Expected default port 8080, got %q", cfg.ServerPort)
	}
	if !cfg.RealtimeEnabled {
		t.Error("Realtime should be enabled by default")
	}
	if cfg.NotifyThrottle != 10*time.Minute {
		t.Errorf("Expected 10m throttle, got %s", cfg.NotifyThrottle)
	}
	if cfg.NotifyTimeout != 3*time.Second {
		t.Errorf("Expected 3s notify timeout, got %s", cfg.NotifyTimeout)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 default origins, got %v", cfg.AllowedOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", " http://a.example , http://b.example")
	t.Setenv("REALTIME_ENABLED", "false")
	t.Setenv("NOTIFY_THROTTLE", "90s")
	t.Setenv("NOTIFY_TIMEOUT", "not-a-duration")

	cfg := Load()

	if cfg.AllowedOrigins[0] != "http://a.example" || cfg.AllowedOrigins[1] != "http://b.example" {
		t.Errorf("Origins should be trimmed, got %v", cfg.AllowedOrigins)
	}
	if cfg.RealtimeEnabled {
		t.Error("REALTIME_ENABLED=false should disable realtime")
	}
	if cfg.NotifyThrottle != 90*time.Second {
		t.Errorf("Expected 90s throttle, got %s", cfg.NotifyThrottle)
	}
	if cfg.NotifyTimeout != 3*time.Second {
		t.Errorf("Invalid duration should fall back to default, got %s", cfg.NotifyTimeout)
	}
}

func TestDSN(t *testing.T) {
	mysqlCfg := Config{DBDriver: "mysql", DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: "3306", DBName: "d"}
	dsn, err := mysqlCfg.DSN()
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if dsn != "u:p@tcp(h:3306)/d?parseTime=true&clientFoundRows=true" {
		t.Errorf("Unexpected mysql DSN %q", dsn)
	}

	sqliteCfg := Config{DBDriver: "sqlite", SQLitePath: "/tmp/x.db"}
	dsn, err = sqliteCfg.DSN()
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:/tmp/x.db?") || !strings.Contains(dsn, "busy_timeout") {
		t.Errorf("Unexpected sqlite DSN %q", dsn)
	}

	if _, err := (Config{DBDriver: "oracle"}).DSN(); err == nil {
		t.Error("Unsupported driver should fail")
	}
}
