package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string
	FSPath      string // Physical directory for uploaded import files

	// Catalog service (external collaborator)
	CatalogBaseURL  string
	CatalogPageSize int

	// Matching policy. Kept as service-level configuration rather than
	// per-catalog tuning; see DESIGN.md.
	AutoAcceptThreshold float64
	TieEpsilon          float64
	MatchFloor          float64

	// Review coordinator / maintenance
	PollInterval      time.Duration
	PlatformCacheTTL  time.Duration
	SessionStaleAfter time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "gamevault"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "gamevault"),
		FSPath:      getEnv("FS_PATH", "./uploads"),

		CatalogBaseURL:  getEnv("CATALOG_BASE_URL", "http://localhost:9090"),
		CatalogPageSize: getEnvInt("CATALOG_PAGE_SIZE", 10),

		AutoAcceptThreshold: getEnvFloat("AUTO_ACCEPT_THRESHOLD", 0.92),
		TieEpsilon:          getEnvFloat("TIE_EPSILON", 0.03),
		MatchFloor:          getEnvFloat("MATCH_FLOOR", 0.3),

		PollInterval:      getEnvDuration("POLL_INTERVAL", 3*time.Second),
		PlatformCacheTTL:  time.Duration(getEnvInt("PLATFORM_CACHE_TTL_DAYS", 30)) * 24 * time.Hour,
		SessionStaleAfter: getEnvDuration("SESSION_STALE_AFTER", 30*time.Minute),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
