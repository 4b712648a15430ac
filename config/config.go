package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Processor ProcessorConfig
	Recovery  RecoveryConfig
	Kafka     KafkaConfig
	API       APIConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Name        string
	Environment string
	Port        string
	StoreDriver string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	MaxIdle  int
	MaxOpen  int
	MaxLife  time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	PoolSize int
}

// QueueConfig holds work queue retry and delivery policy
type QueueConfig struct {
	Name              string
	MaxRetries        int
	RetryBackoff      []time.Duration
	VisibilityTimeout time.Duration
	ResultTTL         time.Duration
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	Embedded     bool
}

// ProcessorConfig holds the execute step configuration
type ProcessorConfig struct {
	Delay time.Duration
}

// RecoveryConfig holds stuck transaction recovery configuration
type RecoveryConfig struct {
	ClaimLease time.Duration
	Schedule   string
	BatchSize  int
}

// KafkaConfig holds event publishing configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// APIConfig holds API configuration
type APIConfig struct {
	RateLimitPerMinute int
	TimeoutSeconds     int
	MaxRequestSize     int64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	backoff, err := getEnvDurationSlice("QUEUE_RETRY_BACKOFF", []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second})
	if err != nil {
		return nil, err
	}

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "txhook"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8000"),
			StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "webhooks_db"),
			User:     getEnv("DB_USER", "webhooks"),
			Password: getEnv("DB_PASSWORD", "webhooks"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxIdle:  getEnvInt("DB_MAX_IDLE", 10),
			MaxOpen:  getEnvInt("DB_MAX_OPEN", 50),
			MaxLife:  getEnvDuration("DB_MAX_LIFE", time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Queue: QueueConfig{
			Name:              getEnv("QUEUE_NAME", "transactions"),
			MaxRetries:        getEnvInt("QUEUE_MAX_RETRIES", 3),
			RetryBackoff:      backoff,
			VisibilityTimeout: getEnvDuration("QUEUE_VISIBILITY_TIMEOUT", 5*time.Minute),
			ResultTTL:         getEnvDuration("QUEUE_RESULT_TTL", 24*time.Hour),
		},
		Worker: WorkerConfig{
			Concurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
			PollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
			Embedded:     getEnvBool("WORKER_EMBEDDED", false),
		},
		Processor: ProcessorConfig{
			Delay: getEnvDuration("PROCESS_DELAY", time.Duration(getEnvInt("PROCESS_DELAY_SECONDS", 30))*time.Second),
		},
		Recovery: RecoveryConfig{
			ClaimLease: getEnvDuration("CLAIM_LEASE", 0),
			Schedule:   getEnv("RECOVERY_SCHEDULE", "@every 1m"),
			BatchSize:  getEnvInt("RECOVERY_BATCH_SIZE", 100),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvSlice("KAFKA_BROKERS", []string{}),
			Topic:   getEnv("KAFKA_TOPIC", "transaction_processed"),
		},
		API: APIConfig{
			RateLimitPerMinute: getEnvInt("API_RATE_LIMIT", 600),
			TimeoutSeconds:     getEnvInt("API_TIMEOUT", 30),
			MaxRequestSize:     getEnvInt64("API_MAX_REQUEST_SIZE", 1048576), // 1MB
		},
	}

	return config, nil
}

// GetDSN returns database connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// GetRedisAddr returns Redis connection address
func (r *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// IsDevelopment returns true if environment is development
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if environment is production
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// getEnvDurationSlice parses a comma separated list of durations such as "10s,30s,60s"
func getEnvDurationSlice(key string, defaultValue []time.Duration) ([]time.Duration, error) {
	parts := getEnvSlice(key, nil)
	if len(parts) == 0 {
		return defaultValue, nil
	}

	result := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", key, part, err)
		}
		result = append(result, d)
	}
	return result, nil
}

// Validate validates configuration
func (c *Config) Validate() error {
	switch c.App.StoreDriver {
	case StoreDriverPostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.App.StoreDriver)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue max retries must not be negative")
	}
	if len(c.Queue.RetryBackoff) == 0 {
		return fmt.Errorf("queue retry backoff must have at least one entry")
	}
	if c.Queue.VisibilityTimeout <= 0 {
		return fmt.Errorf("queue visibility timeout must be positive")
	}
	if c.Queue.VisibilityTimeout <= c.Processor.Delay {
		return fmt.Errorf("queue visibility timeout %v must exceed process delay %v", c.Queue.VisibilityTimeout, c.Processor.Delay)
	}
	if c.Recovery.ClaimLease < 0 {
		return fmt.Errorf("claim lease must not be negative")
	}
	// Confirmation is cut off at half the lease, so the lease must leave room
	// for a full process delay on both sides.
	if c.Recovery.ClaimLease > 0 && c.Recovery.ClaimLease <= 2*c.Processor.Delay {
		return fmt.Errorf("claim lease %v must exceed twice the process delay %v", c.Recovery.ClaimLease, c.Processor.Delay)
	}

	return nil
}

// Print prints configuration (excluding sensitive data)
func (c *Config) Print() {
	fmt.Printf("=== Configuration ===\n")
	fmt.Printf("App Name: %s\n", c.App.Name)
	fmt.Printf("Environment: %s\n", c.App.Environment)
	fmt.Printf("Port: %s\n", c.App.Port)
	fmt.Printf("Store: %s\n", c.App.StoreDriver)
	fmt.Printf("Database: %s:%s/%s\n", c.Database.Host, c.Database.Port, c.Database.Name)
	fmt.Printf("Redis: %s:%s/%d\n", c.Redis.Host, c.Redis.Port, c.Redis.DB)
	fmt.Printf("Queue: %s (retries=%d backoff=%v)\n", c.Queue.Name, c.Queue.MaxRetries, c.Queue.RetryBackoff)
	fmt.Printf("Workers: %d (embedded=%v)\n", c.Worker.Concurrency, c.Worker.Embedded)
	fmt.Printf("Process Delay: %v\n", c.Processor.Delay)
	fmt.Printf("Claim Lease: %v\n", c.Recovery.ClaimLease)
	fmt.Printf("====================\n")
}
