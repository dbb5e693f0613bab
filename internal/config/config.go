package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig holds PostgreSQL database connection settings.
// URL, when set, takes precedence over the individual connection parts.
type DatabaseConfig struct {
	URL                string
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// Enabled reports whether enough connection settings are present to use PostgreSQL.
func (c DatabaseConfig) Enabled() bool {
	return c.URL != "" || c.Host != ""
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// ScratchConfig selects where uploads live while they are being extracted.
type ScratchConfig struct {
	Backend string // "local" or "minio"
	Dir     string
}

// UploadConfig bounds the multipart request body accepted by the HTTP server.
type UploadConfig struct {
	BodyLimit int
}

// MindeeConfig holds credentials and polling behavior for the Mindee API.
type MindeeConfig struct {
	APIKey       string
	BaseURL      string
	InitialDelay time.Duration
	PollInterval time.Duration
	MaxPolls     int
}

// DocAIConfig holds Google Document AI settings.
type DocAIConfig struct {
	Location        string
	CredentialsFile string
}

// ExtractorConfig selects the extraction vendor and the template submitted to it.
type ExtractorConfig struct {
	Provider     string // "mindee" or "docai"
	TemplateFile string
	Account      string
	Endpoint     string
	Version      string
	Timeout      time.Duration
	Mindee       MindeeConfig
	DocAI        DocAIConfig
}

// TemplateSpec identifies a named, versioned extraction template.
type TemplateSpec struct {
	Account string `yaml:"account"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost   string
	Port      string
	Timezone  string
	Database  DatabaseConfig
	MinIO     MinIOConfig
	Scratch   ScratchConfig
	Upload    UploadConfig
	Extractor ExtractorConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:  getEnv("APP_HOST", "localhost:5000"),
		Port:     getEnv("PORT", "5000"),
		Timezone: getEnv("APP_TIMEZONE", "UTC"),
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		Scratch: ScratchConfig{
			Backend: strings.ToLower(getEnv("SCRATCH_BACKEND", "local")),
			Dir:     getEnv("SCRATCH_DIR", "uploads"),
		},
		Upload: UploadConfig{
			// 2 MiB of file content plus room for multipart boundaries and headers.
			BodyLimit: getEnvInt("UPLOAD_BODY_LIMIT", 2*1024*1024+64*1024),
		},
		Extractor: ExtractorConfig{
			Provider:     strings.ToLower(getEnv("EXTRACTOR", "mindee")),
			TemplateFile: getEnv("EXTRACTION_TEMPLATE_FILE", ""),
			Account:      getEnv("EXTRACTION_ACCOUNT", ""),
			Endpoint:     getEnv("EXTRACTION_ENDPOINT", "aadhar_card"),
			Version:      getEnv("EXTRACTION_VERSION", "1"),
			Timeout:      getEnvDuration("EXTRACTION_TIMEOUT", 90*time.Second),
			Mindee: MindeeConfig{
				APIKey:       getEnv("MINDEE_API_KEY", ""),
				BaseURL:      getEnv("MINDEE_BASE_URL", "https://api.mindee.net/v1"),
				InitialDelay: getEnvDuration("MINDEE_INITIAL_DELAY", 2*time.Second),
				PollInterval: getEnvDuration("MINDEE_POLL_INTERVAL", 1500*time.Millisecond),
				MaxPolls:     getEnvInt("MINDEE_MAX_POLLS", 80),
			},
			DocAI: DocAIConfig{
				Location:        getEnv("DOCAI_LOCATION", "us"),
				CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			},
		},
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ResolveTemplate returns the extraction template, reading TemplateFile when it is set.
// Values from the file override the environment; missing keys keep the environment value.
func (c ExtractorConfig) ResolveTemplate() (TemplateSpec, error) {
	spec := TemplateSpec{
		Account: c.Account,
		Name:    c.Endpoint,
		Version: c.Version,
	}
	if c.TemplateFile != "" {
		fromFile, err := LoadTemplateFile(c.TemplateFile)
		if err != nil {
			return TemplateSpec{}, err
		}
		if fromFile.Account != "" {
			spec.Account = fromFile.Account
		}
		if fromFile.Name != "" {
			spec.Name = fromFile.Name
		}
		if fromFile.Version != "" {
			spec.Version = fromFile.Version
		}
	}
	if spec.Account == "" || spec.Name == "" {
		return TemplateSpec{}, fmt.Errorf("extraction template requires account and name")
	}
	return spec, nil
}

// LoadTemplateFile reads a YAML template definition:
//
//	account: my-account
//	name: aadhar_card
//	version: "1"
func LoadTemplateFile(path string) (TemplateSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TemplateSpec{}, fmt.Errorf("read template file: %w", err)
	}
	var spec TemplateSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return TemplateSpec{}, fmt.Errorf("parse template file: %w", err)
	}
	return spec, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
