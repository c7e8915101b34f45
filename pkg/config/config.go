package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	GigaChat GigaChatConfig
	Import   ImportConfig
	Logger   LoggerConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type GigaChatConfig struct {
	APIKey             string
	Scope              string
	InsecureSkipVerify bool
}

// ImportConfig tunes the statement extraction pipeline. The window/chunk
// sizes are deliberately small: the model handles a handful of pages far
// more reliably than a whole statement.
type ImportConfig struct {
	PagesPerChunk      int
	MaxChunksPerWindow int
	ChunkRetries       int
	ChunkDelay         time.Duration
	WindowTimeout      time.Duration
	SaveBatchSize      int
	TextMode           bool
	UploadDir          string
}

func Load() (*Config, error) {
	// Try to load .env file from current directory or project root
	envFiles := []string{".env", "../.env", "../../.env"}
	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}
	// No .env file is fine: environment variables alone work for Docker/K8s

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "300"))
	pagesPerChunk, _ := strconv.Atoi(getEnv("IMPORT_PAGES_PER_CHUNK", "4"))
	maxChunks, _ := strconv.Atoi(getEnv("IMPORT_MAX_CHUNKS_PER_WINDOW", "3"))
	chunkRetries, _ := strconv.Atoi(getEnv("IMPORT_CHUNK_RETRIES", "3"))
	chunkDelay, _ := strconv.Atoi(getEnv("IMPORT_CHUNK_DELAY_SECONDS", "2"))
	windowTimeout, _ := strconv.Atoi(getEnv("IMPORT_WINDOW_TIMEOUT_SECONDS", "240"))
	saveBatchSize, _ := strconv.Atoi(getEnv("IMPORT_SAVE_BATCH_SIZE", "50"))
	insecureSkipVerify := getEnv("GIGACHAT_INSECURE_SKIP_VERIFY", "true") == "true"
	textMode := getEnv("IMPORT_TEXT_MODE", "false") == "true"

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "primanota"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		GigaChat: GigaChatConfig{
			APIKey:             getEnv("GIGACHAT_API_KEY", ""),
			Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
			InsecureSkipVerify: insecureSkipVerify,
		},
		Import: ImportConfig{
			PagesPerChunk:      pagesPerChunk,
			MaxChunksPerWindow: maxChunks,
			ChunkRetries:       chunkRetries,
			ChunkDelay:         time.Duration(chunkDelay) * time.Second,
			WindowTimeout:      time.Duration(windowTimeout) * time.Second,
			SaveBatchSize:      saveBatchSize,
			TextMode:           textMode,
			UploadDir:          getEnv("IMPORT_UPLOAD_DIR", "uploads"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
