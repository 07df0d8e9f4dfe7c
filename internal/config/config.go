package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	// データベース接続設定
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	// サーバー設定
	ServerPort string
	Env        string
	LogLevel   string

	// CORS設定
	AllowedOrigins []string

	// リアルタイム配信
	RealtimeEnabled bool
	RedisURL        string
	NatsURL         string

	// 通知
	NotifyThrottle time.Duration
	NotifyTimeout  time.Duration
	NoticeQueue    string

	// 機能トグル (YAML)
	ToggleFile string
}

// Load loads configuration from environment variables
func Load() Config {
	driver := os.Getenv("DB_DRIVER")
	if driver == "" {
		driver = "mysql"
	}

	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "3306"
	}

	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = "privmsg.db"
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://127.0.0.1:3000"
	}

	noticeQueue := os.Getenv("NOTICE_QUEUE")
	if noticeQueue == "" {
		noticeQueue = "notices"
	}

	cfg := Config{
		DBDriver:        driver,
		DBHost:          dbHost,
		DBPort:          dbPort,
		DBUser:          os.Getenv("DB_USER"),
		DBPassword:      os.Getenv("DB_PASSWORD"),
		DBName:          os.Getenv("DB_NAME"),
		SQLitePath:      sqlitePath,
		ServerPort:      serverPort,
		Env:             env,
		LogLevel:        logLevel,
		AllowedOrigins:  strings.Split(allowedOrigins, ","),
		RealtimeEnabled: envBool("REALTIME_ENABLED", true),
		RedisURL:        os.Getenv("REDIS_URL"),
		NatsURL:         os.Getenv("NATS_URL"),
		NotifyThrottle:  envDuration("NOTIFY_THROTTLE", 10*time.Minute),
		NotifyTimeout:   envDuration("NOTIFY_TIMEOUT", 3*time.Second),
		NoticeQueue:     noticeQueue,
		ToggleFile:      os.Getenv("TOGGLE_FILE"),
	}

	for i := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
	}

	return cfg
}

// DSN returns the data source name for the configured driver.
func (c Config) DSN() (string, error) {
	switch c.DBDriver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&clientFoundRows=true",
			c.DBUser,
			c.DBPassword,
			c.DBHost,
			c.DBPort,
			c.DBName,
		), nil
	case "sqlite":
		q := url.Values{}
		q.Add("_pragma", "busy_timeout(5000)")
		q.Add("_pragma", "foreign_keys(1)")
		q.Add("_pragma", "journal_mode(WAL)")
		return "file:" + c.SQLitePath + "?" + q.Encode(), nil
	default:
		return "", fmt.Errorf("config: unsupported DB_DRIVER %q", c.DBDriver)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
