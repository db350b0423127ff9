package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "DASHBOARD_CONFIG"
	apiKeyEnv     = "AIRTABLE_API_KEY"
	baseIDEnv     = "AIRTABLE_BASE_ID"
	apiURLEnv     = "AIRTABLE_API_URL"
	databaseEnv   = "DATABASE_DSN"
	rabbitMQEnv   = "RABBITMQ_URL"
	httpAddrEnv   = "HTTP_ADDR"

	// имена переменных из .env фронтенда
	viteAPIKeyEnv = "VITE_AIRTABLE_API_KEY"
	viteBaseIDEnv = "VITE_AIRTABLE_BASE_ID"

	DefaultConfigPath = "config.json"
	DefaultAPIURL     = "https://api.airtable.com/v0"
)

// Config хранит настройки подключения к таблицам, параметры дашборда и HTTP-сервера.
type Config struct {
	Airtable  AirtableConfig  `json:"airtable" yaml:"airtable"`
	Dashboard DashboardConfig `json:"dashboard" yaml:"dashboard"`
	HTTP      HTTPConfig      `json:"http" yaml:"http"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	RabbitMQ  RabbitMQConfig  `json:"rabbitmq" yaml:"rabbitmq"`
}

// AirtableConfig описывает доступ к удалённому табличному хранилищу.
type AirtableConfig struct {
	APIKey         string `json:"api_key" yaml:"api_key"`
	BaseID         string `json:"base_id" yaml:"base_id"`
	APIURL         string `json:"api_url" yaml:"api_url"`
	ArticlesTable  string `json:"articles_table" yaml:"articles_table"`
	MetricsTable   string `json:"metrics_table" yaml:"metrics_table"`
	PageSize       int    `json:"page_size" yaml:"page_size"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// Missing возвращает имена незаданных обязательных параметров.
func (a AirtableConfig) Missing() []string {
	var missing []string
	if strings.TrimSpace(a.APIKey) == "" {
		missing = append(missing, apiKeyEnv)
	}
	if strings.TrimSpace(a.BaseID) == "" {
		missing = append(missing, baseIDEnv)
	}
	return missing
}

func (a AirtableConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

type DashboardConfig struct {
	PageSize       int `json:"page_size" yaml:"page_size"`
	DebounceMillis int `json:"debounce_ms" yaml:"debounce_ms"`
	NoticeSeconds  int `json:"notice_seconds" yaml:"notice_seconds"`
}

func (d DashboardConfig) Debounce() time.Duration {
	return time.Duration(d.DebounceMillis) * time.Millisecond
}

func (d DashboardConfig) NoticeTTL() time.Duration {
	return time.Duration(d.NoticeSeconds) * time.Second
}

type HTTPConfig struct {
	Addr   string `json:"addr" yaml:"addr"`
	WebDir string `json:"web_dir" yaml:"web_dir"`
}

// DatabaseConfig - журнал модерации, отключён при пустом DSN.
type DatabaseConfig struct {
	DSN string `json:"dsn" yaml:"dsn"`
}

// RabbitMQConfig - события модерации и сигналы о завершении запусков, отключено при пустом URL.
type RabbitMQConfig struct {
	URL         string `json:"url" yaml:"url"`
	ReviewQueue string `json:"review_queue" yaml:"review_queue"`
	RunQueue    string `json:"run_queue" yaml:"run_queue"`
	Workers     int    `json:"workers" yaml:"workers"`
}

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() *Config {
	return &Config{
		Airtable: AirtableConfig{
			APIURL:         DefaultAPIURL,
			ArticlesTable:  "Content_Articles",
			MetricsTable:   "Analytics_Log",
			PageSize:       100,
			TimeoutSeconds: 15,
		},
		Dashboard: DashboardConfig{
			PageSize:       9,
			DebounceMillis: 300,
			NoticeSeconds:  3,
		},
		HTTP: HTTPConfig{
			Addr:   ":8080",
			WebDir: "./web",
		},
		RabbitMQ: RabbitMQConfig{
			ReviewQueue: "article_reviews",
			RunQueue:    "pipeline_runs",
			Workers:     1,
		},
	}
}

// Validate проверяет размеры страниц, задержки и адреса. Отсутствие ключа API
// ошибкой конфигурации здесь не считается: о нём сообщает загрузка статей.
func (cfg *Config) Validate() error {
	if cfg.Dashboard.PageSize < 1 {
		return errors.New("dashboard page size must be ≥ 1")
	}
	if cfg.Dashboard.DebounceMillis < 0 {
		return errors.New("debounce must not be negative")
	}
	if cfg.Dashboard.NoticeSeconds < 0 {
		return errors.New("notice duration must not be negative")
	}
	if cfg.Airtable.PageSize < 1 || cfg.Airtable.PageSize > 100 {
		return errors.New("airtable page size must be between 1 and 100")
	}
	if cfg.Airtable.TimeoutSeconds < 1 {
		return errors.New("airtable timeout must be ≥ 1 second")
	}
	if cfg.Airtable.ArticlesTable == "" || cfg.Airtable.MetricsTable == "" {
		return errors.New("table names must not be empty")
	}
	if _, err := url.ParseRequestURI(cfg.Airtable.APIURL); err != nil {
		return fmt.Errorf("invalid API URL: %s", cfg.Airtable.APIURL)
	}
	if cfg.RabbitMQ.URL != "" && cfg.RabbitMQ.Workers < 1 {
		return errors.New("rabbitmq workers must be ≥ 1")
	}
	return nil
}

// LoadConfig читает файл по пути path (JSON или YAML по расширению) поверх значений
// по умолчанию и применяет переменные окружения. Отсутствующий файл не является ошибкой.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Path возвращает путь к файлу конфигурации из DASHBOARD_CONFIG или путь по умолчанию.
func Path() string {
	if p := os.Getenv(configPathEnv); p != "" {
		return p
	}
	return DefaultConfigPath
}

// LoadEnv подгружает переменные из .env-файла, если он есть.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return gotenv.Load(existing...)
}

func (cfg *Config) readFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, cfg)
	default:
		err = json.Unmarshal(raw, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func (cfg *Config) applyEnvOverrides() {
	if v := firstEnv(apiKeyEnv, viteAPIKeyEnv); v != "" {
		cfg.Airtable.APIKey = v
	}
	if v := firstEnv(baseIDEnv, viteBaseIDEnv); v != "" {
		cfg.Airtable.BaseID = v
	}
	if v := os.Getenv(apiURLEnv); v != "" {
		cfg.Airtable.APIURL = v
	}
	if v := os.Getenv(databaseEnv); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv(rabbitMQEnv); v != "" {
		cfg.RabbitMQ.URL = v
	}
	if v := os.Getenv(httpAddrEnv); v != "" {
		cfg.HTTP.Addr = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}
