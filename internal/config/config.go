// config предоставляет структуру конфигурации бота и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация бота.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	Telegram TelegramConfig `yaml:"telegram"`
	API      APIConfig      `yaml:"api"`
	Redis    RedisConfig    `yaml:"redis"`
	Tokens   TokensConfig   `yaml:"tokens"`
	Help     HelpConfig     `yaml:"help"`
	Health   HealthConfig   `yaml:"health"`
}

// TelegramConfig — параметры подключения к Bot API.
type TelegramConfig struct {
	Token     string `yaml:"token" env:"BOT_TOKEN" env-required:"true"`
	ParseMode string `yaml:"parse_mode" env:"PARSE_MODE" env-default:"HTML"`
	// Таймаут long-polling в секундах (параметр getUpdates).
	PollTimeout int `yaml:"poll_timeout" env:"POLL_TIMEOUT" env-default:"30"`
}

// APIConfig — параметры доступа к REST API платформы.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"API_URL" env-required:"true"`
	Timeout time.Duration `yaml:"timeout" env:"API_TIMEOUT" env-default:"10s"`
}

// RedisConfig — настройки подключения к Redis, где живут токены и флаги входа.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
}

// Addr возвращает адрес в формате host:port.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// TokensConfig — времена жизни кэшированных токенов.
// TTL задаёт сервер платформы; здесь — срок хранения в Redis.
type TokensConfig struct {
	AccessTTL  time.Duration `yaml:"access_ttl" env:"ACCESS_EXPIRES_IN" env-default:"300s"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"REFRESH_EXPIRES_IN" env-default:"86400s"`
}

// HelpConfig — файл справки и время жизни его кэша.
type HelpConfig struct {
	Path     string        `yaml:"path" env:"HELP_PATH" env-default:"data/help_content.json"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"HELP_CACHE_TTL" env-default:"2s"`
}

// HealthConfig — служебный HTTP (livez/healthz/metrics).
type HealthConfig struct {
	Host string `yaml:"host" env:"HEALTH_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"HEALTH_PORT" env-default:"50091"`
}

// Addr возвращает адрес в формате host:port.
func (h HealthConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// ВАЖНО: после чтения файла накладываем ENV-переменные поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	// чтение файла + overlay ENV.
	tryRead := func(p string) (*Config, error) {
		if p == "" {
			return nil, fmt.Errorf("empty config path")
		}

		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) Явный путь.
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH.
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml.
	if _, err := os.Stat("local.yaml"); err == nil {
		if err := cleanenv.ReadConfig("local.yaml", &cfg); err != nil {
			return nil, fmt.Errorf("failed to read local.yaml: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 4) Только ENV.
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}
