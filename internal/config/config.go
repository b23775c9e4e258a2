package config

import (
	"log"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const devJWTSecret = "default_super_secret_key"

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns the postgres connection URL.
func (c DatabaseConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.Name + "?sslmode=" + c.SSLMode
}

type LimitConfig struct {
	MaxRequests int
	Window      time.Duration
}

type LLMConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type Config struct {
	Port            string
	GinMode         string
	JWTSecret       []byte
	TokenTTL        time.Duration
	CORSOrigins     []string
	Database        DatabaseConfig
	RedisAddr       string
	ChatLimit       LimitConfig
	APILimit        LimitConfig
	LLM             LLMConfig
	WorkdayHours    float64
	HolidayCalendar string
	SecurityBuffer  int
}

// Release reports whether gin runs in release mode.
func (c *Config) Release() bool { return c.GinMode == "release" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("gin_mode", "debug")
	v.SetDefault("token_ttl", "24h")
	v.SetDefault("cors_origins", "http://localhost:5173,http://127.0.0.1:5173")

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "postgres")
	v.SetDefault("db_password", "postgres")
	v.SetDefault("db_name", "postgres")
	v.SetDefault("db_sslmode", "disable")

	v.SetDefault("redis_addr", "")
	v.SetDefault("chat_rate_limit", 20)
	v.SetDefault("chat_rate_window", "1m")
	v.SetDefault("api_rate_limit", 300)
	v.SetDefault("api_rate_window", "1m")

	v.SetDefault("llm_api_url", "")
	v.SetDefault("llm_api_key", "")
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("llm_timeout", "30s")

	v.SetDefault("workday_hours", 7.5)
	v.SetDefault("holiday_calendar", "")
	v.SetDefault("security_event_buffer", 1000)
}

// Load reads envFile (if present) into the environment and resolves the
// configuration from environment variables over defaults.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			log.Printf("No %s file found or error loading it", envFile)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:    v.GetString("port"),
		GinMode: v.GetString("gin_mode"),
		Database: DatabaseConfig{
			Host:     v.GetString("db_host"),
			Port:     v.GetString("db_port"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_password"),
			Name:     v.GetString("db_name"),
			SSLMode:  v.GetString("db_sslmode"),
		},
		RedisAddr: v.GetString("redis_addr"),
		ChatLimit: LimitConfig{
			MaxRequests: v.GetInt("chat_rate_limit"),
			Window:      v.GetDuration("chat_rate_window"),
		},
		APILimit: LimitConfig{
			MaxRequests: v.GetInt("api_rate_limit"),
			Window:      v.GetDuration("api_rate_window"),
		},
		LLM: LLMConfig{
			URL:     v.GetString("llm_api_url"),
			APIKey:  v.GetString("llm_api_key"),
			Model:   v.GetString("llm_model"),
			Timeout: v.GetDuration("llm_timeout"),
		},
		WorkdayHours:    v.GetFloat64("workday_hours"),
		HolidayCalendar: strings.ToLower(v.GetString("holiday_calendar")),
		SecurityBuffer:  v.GetInt("security_event_buffer"),
		TokenTTL:        v.GetDuration("token_ttl"),
	}

	for _, origin := range strings.Split(v.GetString("cors_origins"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, origin)
		}
	}

	secret := v.GetString("jwt_secret")
	if secret == "" {
		if cfg.Release() {
			return nil, errors.New("JWT_SECRET environment variable is required in release mode")
		}
		secret = devJWTSecret // development fallback only
	}
	cfg.JWTSecret = []byte(secret)

	if cfg.ChatLimit.MaxRequests <= 0 || cfg.ChatLimit.Window <= 0 {
		return nil, errors.Newf("invalid chat rate limit %d per %s", cfg.ChatLimit.MaxRequests, cfg.ChatLimit.Window)
	}
	if cfg.APILimit.MaxRequests <= 0 || cfg.APILimit.Window <= 0 {
		return nil, errors.Newf("invalid api rate limit %d per %s", cfg.APILimit.MaxRequests, cfg.APILimit.Window)
	}
	if cfg.WorkdayHours <= 0 || cfg.WorkdayHours > 24 {
		return nil, errors.Newf("invalid workday hours %v", cfg.WorkdayHours)
	}
	return cfg, nil
}
