package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	HTTPAddr  string
	RedisAddr string
	RedisPass string

	JWTSecret string

	// Delivery queue tuning
	QueueTick      time.Duration
	QueueBatchSize int
	MaxRetries     int
	SendTimeout    time.Duration

	// Scheduled-notification worker
	ScheduleTick time.Duration

	// Outbound transports
	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPass     string
	SMSBaseURL   string
	SMSAPIKey    string
	SMSSenderID  string
	PushBaseURL  string
	PushAPIKey   string
}

func Load() AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Println("Notification: No .env file found, relying on system env vars")
	}
	return AppConfig{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8013"),
		RedisAddr: getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass: getEnv("REDIS_PASS", ""),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret"),

		QueueTick:      getEnvDuration("QUEUE_TICK", time.Second),
		QueueBatchSize: getEnvInt("QUEUE_BATCH_SIZE", 10),
		MaxRetries:     getEnvInt("DELIVERY_MAX_RETRIES", 3),
		SendTimeout:    getEnvDuration("SEND_TIMEOUT", 15*time.Second),

		ScheduleTick: getEnvDuration("SCHEDULE_TICK", 30*time.Second),

		SMTPHost:    getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:    getEnv("SMTP_PORT", "465"),
		SMTPUser:    getEnv("SMTP_USER", ""),
		SMTPPass:    getEnv("SMTP_PASS", ""),
		SMSBaseURL:  getEnv("SMS_BASE_URL", ""),
		SMSAPIKey:   getEnv("SMS_API_KEY", ""),
		SMSSenderID: getEnv("SMS_SENDER_ID", ""),
		PushBaseURL: getEnv("PUSH_BASE_URL", ""),
		PushAPIKey:  getEnv("PUSH_API_KEY", ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
