package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 全局配置
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Session      SessionConfig      `yaml:"session"`
	Conversation ConversationConfig `yaml:"conversation"`
	Emotion      EmotionConfig      `yaml:"emotion"`
	Safety       SafetyConfig       `yaml:"safety"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Narrator     NarratorConfig     `yaml:"narrator"`
	Notify       NotifyConfig       `yaml:"notify"`
	Report       ReportConfig       `yaml:"report"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// AllowedOrigins 为空表示允许任意来源（本地开发）。
	AllowedOrigins []string      `yaml:"allowed_origins"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type SessionConfig struct {
	MaxDuration      time.Duration `yaml:"max_duration"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	TeardownTimeout  time.Duration `yaml:"teardown_timeout"`
	QueueCapacity    int           `yaml:"queue_capacity"`
	Retention        time.Duration `yaml:"retention"`
	FearThreshold    float64       `yaml:"fear_threshold"`
	SadnessThreshold float64       `yaml:"sadness_threshold"`
}

type ConversationConfig struct {
	// Provider: tavus | stub
	Provider         string        `yaml:"provider"`
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Timeout          time.Duration `yaml:"timeout"`
	DefaultReplicaID string        `yaml:"default_replica_id"`
	CallbackURL      string        `yaml:"callback_url"`

	ParticipantLeftTimeout   int  `yaml:"participant_left_timeout"`
	ParticipantAbsentTimeout int  `yaml:"participant_absent_timeout"`
	EnableRecording          bool `yaml:"enable_recording"`
	EnableTranscription      bool `yaml:"enable_transcription"`
}

type EmotionConfig struct {
	// Source: client（浏览器推送）| stub（服务端确定性模拟）
	Source  string        `yaml:"source"`
	Cadence time.Duration `yaml:"cadence"`
	Seed    int64         `yaml:"seed"`
}

type SafetyConfig struct {
	ExtraKeywords []string `yaml:"extra_keywords"`
	ExtraHighRisk []string `yaml:"extra_high_risk"`
}

type CatalogConfig struct {
	// TemplatesFile 额外模板（YAML），与内置目录合并。
	TemplatesFile string `yaml:"templates_file"`
}

type NarratorConfig struct {
	PromptsDir string `yaml:"prompts_dir"`
}

type NotifyConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Stream        string `yaml:"stream"`
}

type ReportConfig struct {
	// Driver: memory | sqlite
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default 默认配置，与 configs/storyteller.yaml 一致。
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			PingInterval: 30 * time.Second,
		},
		Session: SessionConfig{
			MaxDuration:      600 * time.Second,
			TickInterval:     time.Second,
			TeardownTimeout:  5 * time.Second,
			QueueCapacity:    100,
			Retention:        30 * time.Minute,
			FearThreshold:    0.7,
			SadnessThreshold: 0.6,
		},
		Conversation: ConversationConfig{
			Provider:                 "stub",
			BaseURL:                  "https://tavusapi.com",
			Timeout:                  15 * time.Second,
			ParticipantLeftTimeout:   30,
			ParticipantAbsentTimeout: 60,
			EnableRecording:          true,
			EnableTranscription:      true,
		},
		Emotion: EmotionConfig{
			Source:  "client",
			Cadence: 500 * time.Millisecond,
			Seed:    1,
		},
		Report: ReportConfig{
			Driver: "memory",
		},
		Notify: NotifyConfig{
			Stream: "storyteller:guardian-alerts",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load 从文件加载配置；path 为空时只使用默认值。之后应用环境变量覆盖并校验。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// applyEnv 从环境变量覆盖敏感信息与部署相关项。
func (c *Config) applyEnv() {
	if v := os.Getenv("TAVUS_API_KEY"); v != "" {
		c.Conversation.APIKey = v
	}
	if v := os.Getenv("STORYTELLER_CONVERSATION_PROVIDER"); v != "" {
		c.Conversation.Provider = v
	}
	if v := os.Getenv("STORYTELLER_REDIS_ADDR"); v != "" {
		c.Notify.RedisAddr = v
	}
	if v := os.Getenv("STORYTELLER_REPORT_DSN"); v != "" {
		c.Report.DSN = v
		if c.Report.Driver == "" || c.Report.Driver == "memory" {
			c.Report.Driver = "sqlite"
		}
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Session.MaxDuration <= 0 {
		errs = append(errs, errors.New("session.max_duration must be positive"))
	}
	if c.Session.TickInterval <= 0 {
		errs = append(errs, errors.New("session.tick_interval must be positive"))
	}
	if c.Session.FearThreshold <= 0 || c.Session.FearThreshold > 1 {
		errs = append(errs, errors.New("session.fear_threshold must be in (0,1]"))
	}
	if c.Session.SadnessThreshold <= 0 || c.Session.SadnessThreshold > 1 {
		errs = append(errs, errors.New("session.sadness_threshold must be in (0,1]"))
	}

	switch c.Conversation.Provider {
	case "stub":
	case "tavus":
		if c.Conversation.APIKey == "" {
			errs = append(errs, errors.New("Tavus API key is required (set TAVUS_API_KEY env var or config)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown conversation.provider: %q", c.Conversation.Provider))
	}

	switch c.Emotion.Source {
	case "client", "stub":
	default:
		errs = append(errs, fmt.Errorf("unknown emotion.source: %q", c.Emotion.Source))
	}

	switch c.Report.Driver {
	case "memory":
	case "sqlite":
		if c.Report.DSN == "" {
			errs = append(errs, errors.New("report.dsn is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown report.driver: %q", c.Report.Driver))
	}

	return errors.Join(errs...)
}

// Addr 监听地址。
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
