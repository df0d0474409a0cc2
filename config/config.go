package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	AppEnv      string
	LogDir      string
	LogLevel    string
	DefaultHost string // the platform's own domain, e.g. lnkr.to

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	RabbitURL   string // empty disables the analytics beacon
	BeaconQueue string

	LinkLength       int
	StatsLimit       int // per-link cap on detailed visit rows
	UserLimitPerDay  int
	NonUserCooldown  bool
	SafeBrowsingKey  string // empty disables malware / cooldown checks
	GeoIPPath        string // empty disables country resolution
	VisitQueueSize   int
	VisitWorkerCount int
}

func Load() *Config {
	_ = godotenv.Load() // ignore error if .env not found

	return &Config{
		Port:        getEnv("PORT", "3000"),
		AppEnv:      getEnv("APP_ENV", "local"),
		LogDir:      getEnv("LOG_DIR", "/var/log"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DefaultHost: getEnv("DEFAULT_DOMAIN", "localhost:3000"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:       getEnv("POSTGRES_DB", "lnkr"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		RabbitURL:   getEnv("RABBITMQ_URL", ""),
		BeaconQueue: getEnv("BEACON_QUEUE", "visit_beacon"),

		LinkLength:       getEnvInt("LINK_LENGTH", 6),
		StatsLimit:       getEnvInt("DEFAULT_MAX_STATS_PER_LINK", 5000),
		UserLimitPerDay:  getEnvInt("USER_LIMIT_PER_DAY", 50),
		NonUserCooldown:  getEnvBool("NON_USER_COOLDOWN", false),
		SafeBrowsingKey:  getEnv("GOOGLE_SAFE_BROWSING_KEY", ""),
		GeoIPPath:        getEnv("GEOIP_DB_PATH", ""),
		VisitQueueSize:   getEnvInt("VISIT_QUEUE_SIZE", 4096),
		VisitWorkerCount: getEnvInt("VISIT_WORKERS", 4),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}
