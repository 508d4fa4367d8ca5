package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Server is the inference service configuration, loaded from the
// environment with .env overrides.
type Server struct {
	Host        string
	Port        string
	CORSOrigins string
	LogLevel    string
	Environment string

	// Store selects session persistence: "postgres" or "memory".
	Store string

	MaxBatchImages int

	DBName     string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	DBMaxConns int
}

func (s *Server) Addr() string {
	return s.Host + ":" + s.Port
}

func (s *Server) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		s.DBHost, s.DBPort, s.DBUser, s.DBPassword, s.DBName, s.DBSSLMode)
}

// DSNForLog renders the DSN with the password masked.
func (s *Server) DSNForLog() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		s.DBHost, s.DBPort, s.DBUser, s.DBName, s.DBSSLMode)
}

func (s *Server) IsDev() bool {
	return s.Environment == "dev"
}

func LoadServer() *Server {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Server{
		Host:        getEnv("API_HOST", "0.0.0.0"),
		Port:        getEnv("API_PORT", "5000"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		Environment: getEnv("ENVIRONMENT", "production"),
		Store:       getEnv("STORE", "memory"),

		MaxBatchImages: getEnvInt("MAX_BATCH_IMAGES", 10),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "vigil"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBMaxConns: getEnvInt("DB_MAX_CONNS", 4),
	}

	if cfg.Store != "postgres" && cfg.Store != "memory" {
		fmt.Printf("WARNING: unknown STORE %q, falling back to memory\n", cfg.Store)
		cfg.Store = "memory"
	}
	if cfg.Store == "postgres" && cfg.DBPassword == "" {
		fmt.Println("WARNING: DB_PASSWORD is not set!")
	}

	return cfg
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}
