package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

type Config struct {
	FacebookAppID         string
	FacebookAppSecret     string
	InstagramClientID     string
	InstagramClientSecret string
	TiktokClientKey       string
	TiktokClientSecret    string
	GoogleClientID        string
	GoogleClientSecret    string
	PostgresURI           string
	RedisURI              string
	FrontendURL           string
	R2                    R2
	SecretKey             string
	CookieName            string

	PollInterval      time.Duration
	PollBatchSize     int
	WorkerConcurrency int
	QueueMaxRetry     int
	QueueRetention    time.Duration
	PublishTimeout    time.Duration
	ClaimTolerance    time.Duration
}

func LoadConfig() *Config {
	return &Config{
		FacebookAppID:         getEnv("FACEBOOK_APP_ID", ""),
		FacebookAppSecret:     getEnv("FACEBOOK_APP_SECRET", ""),
		InstagramClientID:     getEnv("INSTAGRAM_CLIENT_ID", ""),
		InstagramClientSecret: getEnv("INSTAGRAM_CLIENT_SECRET", ""),
		TiktokClientKey:       getEnv("TIKTOK_CLIENT_KEY", ""),
		TiktokClientSecret:    getEnv("TIKTOK_CLIENT_SECRET", ""),
		GoogleClientID:        getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_CLIENT_SECRET", ""),
		PostgresURI:           getEnv("POSTGRES_URI", ""),
		RedisURI:              getEnv("REDIS_URI", ""),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", ""),

		PollInterval:      getEnvDuration("POLL_INTERVAL", 30*time.Second),
		PollBatchSize:     getEnvInt("POLL_BATCH_SIZE", 50),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 2),
		QueueMaxRetry:     getEnvInt("QUEUE_MAX_RETRY", 3),
		QueueRetention:    getEnvDuration("QUEUE_RETENTION", 24*time.Hour),
		PublishTimeout:    getEnvDuration("PUBLISH_TIMEOUT", 30*time.Second),
		ClaimTolerance:    getEnvDuration("CLAIM_TOLERANCE", time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
