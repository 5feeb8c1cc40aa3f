package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	CORS        CORSConfig
	Log         LogConfig
	Upload      UploadConfig
	Scanner     ScannerConfig
	Quarantine  QuarantineConfig
	RateLimit   RateLimitConfig
	SecurityLog SecurityLogConfig
	Alerts      AlertConfig
	Reports     ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UploadConfig bounds intake and staging of uploaded files.
type UploadConfig struct {
	TempDir          string
	StorageDir       string
	MaxFileSizeBytes int64
	MaxFilenameLen   int
}

// ScannerConfig tunes content-scan heuristics. The threat/warning split
// for injection patterns is deliberately configurable; the defaults are
// the current best-known calibration.
type ScannerConfig struct {
	EntropyThreatThreshold  float64
	EntropyWarningThreshold float64
	EntropyWindowBytes      int
	CommandTokenThreatCount int
	NullByteWarningRatio    float64
	LargeFileWarningBytes   int64
	HighRiskScore           int
	MediumRiskScore         int
	QuarantineEnabled       bool
}

// QuarantineConfig controls the quarantine holding area.
type QuarantineConfig struct {
	Dir               string
	MaxRetention      time.Duration
	SweepInterval     time.Duration
	MaxTotalSizeBytes int64
}

// RateLimitTier describes one sliding-window counter.
type RateLimitTier struct {
	Window       time.Duration
	MaxUploads   int
	MaxSizeBytes int64
}

// RateLimitConfig carries every limiter tier plus housekeeping knobs.
type RateLimitConfig struct {
	Store              string
	Burst              RateLimitTier
	General            RateLimitTier
	PerUser            RateLimitTier
	LargeFile          RateLimitTier
	Suspicious         RateLimitTier
	LargeFileThreshold int64
	SuspiciousFor      time.Duration
	CleanupInterval    time.Duration
}

// SecurityLogConfig controls the rotating security audit log.
type SecurityLogConfig struct {
	Dir              string
	Application      string
	MaxFileSizeBytes int64
	MaxFiles         int
}

// AlertConfig sets trailing-window alert thresholds.
type AlertConfig struct {
	Window           time.Duration
	CriticalEvents   int
	SuspiciousEvents int
	FailedUploads    int
	MinAlertInterval time.Duration
	DispatchWorkers  int
}

// ReportsConfig toggles the admin security-report export endpoints.
type ReportsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Upload = UploadConfig{
		TempDir:          v.GetString("UPLOAD_TEMP_DIR"),
		StorageDir:       v.GetString("UPLOAD_STORAGE_DIR"),
		MaxFileSizeBytes: v.GetInt64("UPLOAD_MAX_FILE_SIZE"),
		MaxFilenameLen:   v.GetInt("UPLOAD_MAX_FILENAME_LEN"),
	}

	cfg.Scanner = ScannerConfig{
		EntropyThreatThreshold:  v.GetFloat64("SCAN_ENTROPY_THREAT"),
		EntropyWarningThreshold: v.GetFloat64("SCAN_ENTROPY_WARNING"),
		EntropyWindowBytes:      v.GetInt("SCAN_ENTROPY_WINDOW"),
		CommandTokenThreatCount: v.GetInt("SCAN_CMD_TOKEN_THREAT_COUNT"),
		NullByteWarningRatio:    v.GetFloat64("SCAN_NULL_BYTE_RATIO"),
		LargeFileWarningBytes:   v.GetInt64("SCAN_LARGE_FILE_WARNING"),
		HighRiskScore:           v.GetInt("SCAN_HIGH_RISK_SCORE"),
		MediumRiskScore:         v.GetInt("SCAN_MEDIUM_RISK_SCORE"),
		QuarantineEnabled:       v.GetBool("SCAN_QUARANTINE_ENABLED"),
	}

	cfg.Quarantine = QuarantineConfig{
		Dir:               v.GetString("QUARANTINE_DIR"),
		MaxRetention:      parseDuration(v.GetString("QUARANTINE_MAX_RETENTION"), 24*time.Hour),
		SweepInterval:     parseDuration(v.GetString("QUARANTINE_SWEEP_INTERVAL"), time.Hour),
		MaxTotalSizeBytes: v.GetInt64("QUARANTINE_MAX_TOTAL_SIZE"),
	}

	cfg.RateLimit = RateLimitConfig{
		Store: v.GetString("RATE_LIMIT_STORE"),
		Burst: RateLimitTier{
			Window:     parseDuration(v.GetString("RATE_BURST_WINDOW"), time.Minute),
			MaxUploads: v.GetInt("RATE_BURST_MAX_UPLOADS"),
		},
		General: RateLimitTier{
			Window:       parseDuration(v.GetString("RATE_GENERAL_WINDOW"), 15*time.Minute),
			MaxUploads:   v.GetInt("RATE_GENERAL_MAX_UPLOADS"),
			MaxSizeBytes: v.GetInt64("RATE_GENERAL_MAX_SIZE"),
		},
		PerUser: RateLimitTier{
			Window:       parseDuration(v.GetString("RATE_USER_WINDOW"), time.Hour),
			MaxUploads:   v.GetInt("RATE_USER_MAX_UPLOADS"),
			MaxSizeBytes: v.GetInt64("RATE_USER_MAX_SIZE"),
		},
		LargeFile: RateLimitTier{
			Window:     parseDuration(v.GetString("RATE_LARGE_WINDOW"), 30*time.Minute),
			MaxUploads: v.GetInt("RATE_LARGE_MAX_UPLOADS"),
		},
		Suspicious: RateLimitTier{
			Window:       parseDuration(v.GetString("RATE_SUSPICIOUS_WINDOW"), 5*time.Minute),
			MaxUploads:   v.GetInt("RATE_SUSPICIOUS_MAX_UPLOADS"),
			MaxSizeBytes: v.GetInt64("RATE_SUSPICIOUS_MAX_SIZE"),
		},
		LargeFileThreshold: v.GetInt64("RATE_LARGE_FILE_THRESHOLD"),
		SuspiciousFor:      parseDuration(v.GetString("RATE_SUSPICIOUS_FOR"), time.Hour),
		CleanupInterval:    parseDuration(v.GetString("RATE_CLEANUP_INTERVAL"), 10*time.Minute),
	}

	cfg.SecurityLog = SecurityLogConfig{
		Dir:              v.GetString("SECURITY_LOG_DIR"),
		Application:      v.GetString("SECURITY_LOG_APPLICATION"),
		MaxFileSizeBytes: v.GetInt64("SECURITY_LOG_MAX_FILE_SIZE"),
		MaxFiles:         v.GetInt("SECURITY_LOG_MAX_FILES"),
	}

	cfg.Alerts = AlertConfig{
		Window:           parseDuration(v.GetString("ALERT_WINDOW"), time.Hour),
		CriticalEvents:   v.GetInt("ALERT_CRITICAL_EVENTS"),
		SuspiciousEvents: v.GetInt("ALERT_SUSPICIOUS_EVENTS"),
		FailedUploads:    v.GetInt("ALERT_FAILED_UPLOADS"),
		MinAlertInterval: parseDuration(v.GetString("ALERT_MIN_INTERVAL"), time.Hour),
		DispatchWorkers:  v.GetInt("ALERT_DISPATCH_WORKERS"),
	}

	cfg.Reports = ReportsConfig{Enabled: v.GetBool("ENABLE_SECURITY_REPORTS")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "upload_gateway")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPLOAD_TEMP_DIR", "./tmp/uploads")
	v.SetDefault("UPLOAD_STORAGE_DIR", "./uploads")
	v.SetDefault("UPLOAD_MAX_FILE_SIZE", 100*1024*1024)
	v.SetDefault("UPLOAD_MAX_FILENAME_LEN", 255)

	v.SetDefault("SCAN_ENTROPY_THREAT", 7.8)
	v.SetDefault("SCAN_ENTROPY_WARNING", 7.5)
	v.SetDefault("SCAN_ENTROPY_WINDOW", 4096)
	v.SetDefault("SCAN_CMD_TOKEN_THREAT_COUNT", 3)
	v.SetDefault("SCAN_NULL_BYTE_RATIO", 0.1)
	v.SetDefault("SCAN_LARGE_FILE_WARNING", 100*1024*1024)
	v.SetDefault("SCAN_HIGH_RISK_SCORE", 50)
	v.SetDefault("SCAN_MEDIUM_RISK_SCORE", 25)
	v.SetDefault("SCAN_QUARANTINE_ENABLED", true)

	v.SetDefault("QUARANTINE_DIR", "./quarantine")
	v.SetDefault("QUARANTINE_MAX_RETENTION", "24h")
	v.SetDefault("QUARANTINE_SWEEP_INTERVAL", "1h")
	v.SetDefault("QUARANTINE_MAX_TOTAL_SIZE", 1024*1024*1024)

	v.SetDefault("RATE_LIMIT_STORE", "memory")
	v.SetDefault("RATE_BURST_WINDOW", "1m")
	v.SetDefault("RATE_BURST_MAX_UPLOADS", 10)
	v.SetDefault("RATE_GENERAL_WINDOW", "15m")
	v.SetDefault("RATE_GENERAL_MAX_UPLOADS", 50)
	v.SetDefault("RATE_GENERAL_MAX_SIZE", 500*1024*1024)
	v.SetDefault("RATE_USER_WINDOW", "1h")
	v.SetDefault("RATE_USER_MAX_UPLOADS", 100)
	v.SetDefault("RATE_USER_MAX_SIZE", 1024*1024*1024)
	v.SetDefault("RATE_LARGE_WINDOW", "30m")
	v.SetDefault("RATE_LARGE_MAX_UPLOADS", 5)
	v.SetDefault("RATE_SUSPICIOUS_WINDOW", "5m")
	v.SetDefault("RATE_SUSPICIOUS_MAX_UPLOADS", 5)
	v.SetDefault("RATE_SUSPICIOUS_MAX_SIZE", 50*1024*1024)
	v.SetDefault("RATE_LARGE_FILE_THRESHOLD", 10*1024*1024)
	v.SetDefault("RATE_SUSPICIOUS_FOR", "1h")
	v.SetDefault("RATE_CLEANUP_INTERVAL", "10m")

	v.SetDefault("SECURITY_LOG_DIR", "./logs/security")
	v.SetDefault("SECURITY_LOG_APPLICATION", "upload-gateway")
	v.SetDefault("SECURITY_LOG_MAX_FILE_SIZE", 10*1024*1024)
	v.SetDefault("SECURITY_LOG_MAX_FILES", 50)

	v.SetDefault("ALERT_WINDOW", "1h")
	v.SetDefault("ALERT_CRITICAL_EVENTS", 5)
	v.SetDefault("ALERT_SUSPICIOUS_EVENTS", 10)
	v.SetDefault("ALERT_FAILED_UPLOADS", 20)
	v.SetDefault("ALERT_MIN_INTERVAL", "1h")
	v.SetDefault("ALERT_DISPATCH_WORKERS", 1)

	v.SetDefault("ENABLE_SECURITY_REPORTS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
