package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string
	AutoMigrate bool
	GinMode     string

	// Kiosk SSH access. Host and user can be overridden per run by the
	// system_config row; these are the bootstrap defaults.
	KioskHost       string
	KioskSSHUser    string
	KioskSSHKeyFile string
	KioskPassword   string
	KioskLogDir     string
	KioskArchiveDir string
	FetchTimeout    time.Duration

	// LNbits payment collaborator.
	LNbitsURL    string
	LNbitsAPIKey string

	// Optional RabbitMQ notification sink. Empty URL disables it.
	RabbitURL string

	// Timezone used for fixed-mode day rollover.
	Timezone string

	// Fiat currency the kiosk operates in.
	FiatCode string
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "dca"),
		DBPassword:  getEnv("DB_PASSWORD", "dca_secret"),
		DBName:      getEnv("DB_NAME", "dca"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),
		AutoMigrate: getEnv("AUTO_MIGRATE", "false") == "true",
		GinMode:     getEnv("GIN_MODE", "debug"),

		KioskHost:       getEnv("KIOSK_HOST", ""),
		KioskSSHUser:    getEnv("KIOSK_SSH_USER", "root"),
		KioskSSHKeyFile: getEnv("KIOSK_SSH_KEY_FILE", ""),
		KioskPassword:   getEnv("KIOSK_SSH_PASSWORD", ""),
		KioskLogDir:     getEnv("KIOSK_LOG_DIR", "./kiosk_logs"),
		KioskArchiveDir: getEnv("KIOSK_ARCHIVE_DIR", "./kiosk_logs/archive"),
		FetchTimeout:    getEnvDuration("KIOSK_FETCH_TIMEOUT", 60*time.Second),

		LNbitsURL:    getEnv("LNBITS_URL", "http://localhost:5000"),
		LNbitsAPIKey: getEnv("LNBITS_API_KEY", ""),

		RabbitURL: getEnv("RABBIT_URL", ""),

		Timezone: getEnv("DCA_TIMEZONE", "UTC"),

		FiatCode: getEnv("DCA_FIAT_CODE", "GTQ"),
	}
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
