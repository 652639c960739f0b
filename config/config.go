package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv string

	// Worker pool
	WorkerCount int

	// External converter
	OfficeServiceURL string
	SofficePath      string
	TemplateDir      string

	// Per-strategy ceilings
	ServiceTimeout time.Duration
	DirectTimeout  time.Duration
	ExtractTimeout time.Duration

	// Input validation
	MaxInputBytes int

	// Cache store
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisPrefix      string
	CacheTTL         time.Duration
	DocumentCacheTTL time.Duration

	// Batch tracking
	BatchRetention time.Duration

	// Artifact store
	ArtifactDir    string
	S3Bucket       string
	S3Region       string
	AWSS3AccessKey string
	AWSS3SecretKey string
	S3Endpoint     string
	S3UsePathStyle bool

	// Optional conversion history
	DatabaseURL string

	ShutdownTimeout time.Duration
}

func Load() *Config {
	// Local development keeps settings in a .env file; absence is fine.
	_ = godotenv.Load()

	redisPrefix := getEnv("REDIS_PREFIX", "")

	return &Config{
		AppEnv: getEnv("APP_ENV", "development"),

		WorkerCount: getEnvInt("CONVERSION_WORKER_COUNT", 3),

		OfficeServiceURL: getEnv("OFFICE_SERVICE_URL", "http://libreoffice:8080"),
		SofficePath:      getEnv("SOFFICE_PATH", "soffice"),
		TemplateDir:      getEnv("TEMPLATE_DIR", "/app/templates"),

		ServiceTimeout: seconds(getEnvInt("SERVICE_TIMEOUT", 60)),
		DirectTimeout:  seconds(getEnvInt("DIRECT_TIMEOUT", 30)),
		ExtractTimeout: seconds(getEnvInt("EXTRACT_TIMEOUT", 15)),

		MaxInputBytes: getEnvInt("MAX_INPUT_BYTES", 20<<20),

		RedisAddr:        getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_CONVERSION_DB", 3),
		RedisPrefix:      applyPrefix("conversion:", redisPrefix),
		CacheTTL:         seconds(getEnvInt("CACHE_TTL", 3600)),
		DocumentCacheTTL: seconds(getEnvInt("DOCUMENT_CACHE_TTL", 86400)),

		BatchRetention: seconds(getEnvInt("BATCH_RETENTION", 3600)),

		ArtifactDir:    getEnv("ARTIFACT_DIR", os.TempDir()),
		S3Bucket:       getEnv("AWS_BUCKET", ""),
		S3Region:       getEnvWithFallback("S3_REGION", "AWS_DEFAULT_REGION", "us-east-1"),
		AWSS3AccessKey: getEnvWithFallback("S3_KEY", "AWS_ACCESS_KEY_ID", ""),
		AWSS3SecretKey: getEnvWithFallback("S3_SECRET", "AWS_SECRET_ACCESS_KEY", ""),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3UsePathStyle: getEnvBool("S3_USE_PATH_STYLE_ENDPOINT", false),

		DatabaseURL: databaseURL(),

		ShutdownTimeout: seconds(getEnvInt("SHUTDOWN_TIMEOUT", 30)),
	}
}

// databaseURL prefers an explicit DATABASE_URL and otherwise assembles a
// lib/pq connection string from DB_* parts. An empty result disables the
// conversion history recorder.
func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return ""
	}

	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_DATABASE", "docbridge")
	dbUser := getEnv("DB_USERNAME", "docbridge")
	dbPassword := getEnv("DB_PASSWORD", "")
	dbSSLMode := getEnv("DB_SSLMODE", "disable")

	// lib/pq supports "key=value" connection strings and this avoids
	// URI escaping issues for special characters in passwords.
	var dbURL string
	if dbPassword != "" {
		dbURL = fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbPassword, dbSSLMode,
		)
	} else {
		dbURL = fmt.Sprintf(
			"host=%s port=%s dbname=%s user=%s sslmode=%s",
			dbHost, dbPort, dbName, dbUser, dbSSLMode,
		)
	}

	if cert := os.Getenv("DB_SSLCERT"); cert != "" {
		dbURL += fmt.Sprintf(" sslcert=%s", cert)
	}
	if key := os.Getenv("DB_SSLKEY"); key != "" {
		dbURL += fmt.Sprintf(" sslkey=%s", key)
	}
	if root := os.Getenv("DB_SSLROOTCERT"); root != "" {
		dbURL += fmt.Sprintf(" sslrootcert=%s", root)
	}

	return dbURL
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvWithFallback(primaryKey, secondaryKey, fallback string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(secondaryKey); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func applyPrefix(key string, prefix string) string {
	if prefix == "" {
		return key
	}
	return prefix + key
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return fallback
}
