package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendOpenCV      = "opencv"
	BackendONNXRuntime = "onnxruntime"
)

type Config struct {
	Port int

	ModelPath           string
	LabelsPath          string
	ModelBackend        string // opencv albo onnxruntime
	ONNXRuntimeLib      string
	InputSize           int
	ConfidenceThreshold float64
	NMSThreshold        float64
	MaxDetections       int
	InferenceWorkers    int // Liczba załadowanych instancji modelu

	FetchTimeout      time.Duration
	FetchAllowPrivate bool
	FetchAllowedHosts []string
	MaxImageBytes     int64
	MaxUploadBytes    int64

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	CORSAllowedOrigins []string

	LogLevel     string
	LogDirectory string // Pusty = tylko stdout
}

// Load reads the optional .env file and then builds the Config from environment
// variables. A .env file that exists but cannot be parsed is an error.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	return &Config{
		Port:                getEnvAsInt("PORT", 8000),
		ModelPath:           getEnv("MODEL_PATH", filepath.Join(".", "models", "best.onnx")),
		LabelsPath:          getEnv("LABELS_PATH", filepath.Join(".", "models", "labels.txt")),
		ModelBackend:        strings.ToLower(getEnv("MODEL_BACKEND", BackendOpenCV)),
		ONNXRuntimeLib:      getEnv("ONNXRUNTIME_LIB", "libonnxruntime.so"),
		InputSize:           getEnvAsInt("INPUT_SIZE", 640),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.25),
		NMSThreshold:        getEnvAsFloat("NMS_IOU", 0.7),
		MaxDetections:       getEnvAsInt("MAX_DETECTIONS", 300),
		InferenceWorkers:    getEnvAsInt("INFERENCE_WORKERS", 2),
		FetchTimeout:        getEnvAsDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchAllowPrivate:   getEnvAsBool("FETCH_ALLOW_PRIVATE", false),
		FetchAllowedHosts:   getEnvAsList("FETCH_ALLOWED_HOSTS", nil),
		MaxImageBytes:       getEnvAsInt64("MAX_IMAGE_BYTES", 32<<20),
		MaxUploadBytes:      getEnvAsInt64("MAX_UPLOAD_BYTES", 50<<20),
		ReadTimeout:         getEnvAsDuration("READ_TIMEOUT", 60*time.Second),
		WriteTimeout:        getEnvAsDuration("WRITE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:     getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		CORSAllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogDirectory:        getEnv("LOG_DIR", ""),
	}, nil
}

// Validate reports the first setting that cannot be used to start the server.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid PORT %d", c.Port)
	case c.ModelPath == "":
		return errors.New("MODEL_PATH is required")
	case c.LabelsPath == "":
		return errors.New("LABELS_PATH is required")
	case c.ModelBackend != BackendOpenCV && c.ModelBackend != BackendONNXRuntime:
		return fmt.Errorf("unknown MODEL_BACKEND %q (want %s or %s)", c.ModelBackend, BackendOpenCV, BackendONNXRuntime)
	case c.InputSize <= 0 || c.InputSize%32 != 0:
		return fmt.Errorf("INPUT_SIZE must be a positive multiple of 32, got %d", c.InputSize)
	case c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1:
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be within [0, 1], got %v", c.ConfidenceThreshold)
	case c.NMSThreshold <= 0 || c.NMSThreshold > 1:
		return fmt.Errorf("NMS_IOU must be within (0, 1], got %v", c.NMSThreshold)
	case c.MaxDetections <= 0:
		return fmt.Errorf("MAX_DETECTIONS must be positive, got %d", c.MaxDetections)
	case c.InferenceWorkers <= 0:
		return fmt.Errorf("INFERENCE_WORKERS must be positive, got %d", c.InferenceWorkers)
	case c.FetchTimeout <= 0:
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %v", c.FetchTimeout)
	case c.MaxImageBytes <= 0 || c.MaxUploadBytes <= 0:
		return errors.New("MAX_IMAGE_BYTES and MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// loadEnvFile populates the environment from a dotenv file without overriding
// variables that are already set. A missing file is not an error.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("10s", "1m") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
