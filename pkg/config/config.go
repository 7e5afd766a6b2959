package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port                    string
	Env                     string
	LogLevel                string
	FirebaseCredentialsPath string
	StoreBackend            string
	MongoURI                string
	MongoDatabase           string
	PostgresConnStr         string
	RedisAddr               string
	RedisPassword           string
	TaskQueue               string
	TaskSigningSecret       string
	CallbackBaseURL         string
	ExpoBaseURL             string
	ExpoAccessToken         string

	BatchDelay            time.Duration
	ReceiptSweepInterval  time.Duration
	RevealSweepInterval   time.Duration
	RevealInterval        time.Duration
	BatchRetention        time.Duration
	NotificationRetention time.Duration
	ReceiptRetention      time.Duration
	ProfileCacheTTL       time.Duration
	TaskMaxRetry          int
	WorkerConcurrency     int
}

// Load reads the process configuration from the environment. A .env file in
// the working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, assuming environment variables are set.")
	}

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase_credentials.json"),
		StoreBackend:            getEnv("STORE_BACKEND", "firestore"),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDatabase:           getEnv("MONGO_DATABASE", "flick"),
		PostgresConnStr:         getEnv("POSTGRES_CONN_STR", ""),
		RedisAddr:               getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:           getEnv("REDIS_PASSWORD", ""),
		TaskQueue:               getEnv("TASK_QUEUE", "notifications"),
		TaskSigningSecret:       getEnv("TASK_SIGNING_SECRET", ""),
		CallbackBaseURL:         getEnv("CALLBACK_BASE_URL", "http://localhost:8080"),
		ExpoBaseURL:             getEnv("EXPO_BASE_URL", "https://exp.host/--/api/v2"),
		ExpoAccessToken:         getEnv("EXPO_ACCESS_TOKEN", ""),

		BatchDelay:            getEnvDuration("BATCH_DELAY", 30*time.Second),
		ReceiptSweepInterval:  getEnvDuration("RECEIPT_SWEEP_INTERVAL", 15*time.Minute),
		RevealSweepInterval:   getEnvDuration("REVEAL_SWEEP_INTERVAL", 2*time.Minute),
		RevealInterval:        getEnvDuration("REVEAL_INTERVAL", 3*time.Hour),
		BatchRetention:        getEnvDuration("BATCH_RETENTION", 24*time.Hour),
		NotificationRetention: getEnvDuration("NOTIFICATION_RETENTION", 30*24*time.Hour),
		ReceiptRetention:      getEnvDuration("RECEIPT_RETENTION", 48*time.Hour),
		ProfileCacheTTL:       getEnvDuration("PROFILE_CACHE_TTL", 5*time.Minute),
		TaskMaxRetry:          getEnvInt("TASK_MAX_RETRY", 5),
		WorkerConcurrency:     getEnvInt("WORKER_CONCURRENCY", 10),
	}
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		logrus.WithField("key", key).Warnf("invalid integer %q, using default %d", value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		logrus.WithField("key", key).Warnf("invalid duration %q, using default %s", value, defaultValue)
		return defaultValue
	}
	return d
}
