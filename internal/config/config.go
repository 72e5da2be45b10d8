package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Selectors 详情页 / 列表页的结构化选择器，站点改版时可在配置文件中覆盖
type Selectors struct {
	Hits     string `yaml:"hits"`
	Entry    string `yaml:"entry"`
	Date     string `yaml:"date"`
	Teaser   string `yaml:"teaser"`
	Link     string `yaml:"link"`
	Text     string `yaml:"text"`
	Category string `yaml:"category"`
	Region   string `yaml:"region"`
}

type Config struct {
	AppPort string `yaml:"app_port"`

	PostgresDSN string `yaml:"postgres_dsn"`
	RedisAddr   string `yaml:"redis_addr"`

	CronSpec string `yaml:"cron_spec"`
	// WindowDays 定时任务每次回看的天数（截至昨天）
	WindowDays int `yaml:"window_days"`

	// 全站 Basic Auth，两者都非空时启用
	BasicAuthUser string `yaml:"basic_auth_user"`
	BasicAuthPass string `yaml:"basic_auth_pass"`

	// DW 搜索相关
	BaseURL            string `yaml:"base_url"`
	LanguageCode       string `yaml:"language_code"`
	SearchNavigationID string `yaml:"search_navigation_id"`
	ProbeCount         int    `yaml:"probe_count"`

	RequestDelay   time.Duration `yaml:"request_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MinTextLength  int           `yaml:"min_text_length"`
	UserAgent      string        `yaml:"user_agent"`

	// RenderURL 非空时详情页经 cmd/renderer 渲染后再解析
	RenderURL string `yaml:"render_url"`

	Selectors Selectors `yaml:"selectors"`
}

// Default 返回不依赖环境变量的默认配置
func Default() *Config {
	return &Config{
		AppPort:            "9000",
		PostgresDSN:        "host=localhost user=dwscraper password=dwscraper dbname=dwscraper port=5432 sslmode=disable TimeZone=UTC",
		RedisAddr:          "localhost:6380",
		CronSpec:           "30 2 * * *",
		WindowDays:         1,
		BaseURL:            "https://www.dw.com",
		LanguageCode:       "en",
		SearchNavigationID: "9097-30688-8120",
		ProbeCount:         10,
		RequestDelay:       time.Second,
		RequestTimeout:     30 * time.Second,
		MinTextLength:      120,
		UserAgent:          "DWScraperBot/1.0",
		Selectors:          DefaultSelectors(),
	}
}

func DefaultSelectors() Selectors {
	return Selectors{
		Hits:     "span.hits.from",
		Entry:    "div.searchResult",
		Date:     "span.date",
		Teaser:   "p",
		Link:     "a",
		Text:     "div.sc-gicCDI:nth-child(5)",
		Category: "div.sc-kLLXSd:nth-child(1) > span:nth-child(1)",
		Region:   "div.sc-kLLXSd:nth-child(1) > span:nth-child(2)",
	}
}

// Load 按 默认值 → CONFIG_FILE(yaml) → 环境变量 的顺序叠加配置
func Load() *Config {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			log.Printf("warn: load config file %s: %v", path, err)
		}
	}

	cfg.AppPort = getEnv("APP_PORT", cfg.AppPort)
	cfg.PostgresDSN = getEnv("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.CronSpec = getEnv("CRON_SPEC", cfg.CronSpec)
	cfg.WindowDays = getEnvInt("WINDOW_DAYS", cfg.WindowDays)
	cfg.BasicAuthUser = getEnv("APP_BASIC_USER", cfg.BasicAuthUser)
	cfg.BasicAuthPass = getEnv("APP_BASIC_PASS", cfg.BasicAuthPass)
	cfg.BaseURL = getEnv("DW_BASE_URL", cfg.BaseURL)
	cfg.LanguageCode = getEnv("DW_LANGUAGE_CODE", cfg.LanguageCode)
	cfg.SearchNavigationID = getEnv("DW_SEARCH_NAVIGATION_ID", cfg.SearchNavigationID)
	cfg.ProbeCount = getEnvInt("PROBE_COUNT", cfg.ProbeCount)
	cfg.RequestDelay = getEnvDuration("REQUEST_DELAY", cfg.RequestDelay)
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.MinTextLength = getEnvInt("MIN_TEXT_LENGTH", cfg.MinTextLength)
	cfg.UserAgent = getEnv("USER_AGENT", cfg.UserAgent)
	cfg.RenderURL = getEnv("RENDER_URL", cfg.RenderURL)

	log.Printf("config loaded: port=%s cron=%s base=%s delay=%s", cfg.AppPort, cfg.CronSpec, cfg.BaseURL, cfg.RequestDelay)
	return cfg
}

// loadFile 读取 yaml 配置；文件中未出现的字段保持原值
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("warn: invalid %s=%q, using %d", key, v, def)
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("warn: invalid %s=%q, using %s", key, v, def)
	}
	return def
}

// Now returns current time, 方便后续做可测试封装
func Now() time.Time {
	return time.Now()
}
