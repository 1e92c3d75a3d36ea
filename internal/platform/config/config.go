package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はプロセス起動時に一度だけ読み込み、必要なコンポーネントへ
// 参照渡しする。グローバルには持たない。
type Config struct {
	Version  string         `yaml:"version"`
	Mode     string         `yaml:"mode"` // dev | release
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Features FeatureFlags   `yaml:"features"`
	Cache    CacheConfig    `yaml:"cache"`
	Rate     RateConfig     `yaml:"ratelimit"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql | memory
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

// リソースグループ単位の機能トグル。無効時は該当ルートが404を返す。
type FeatureFlags struct {
	Books  bool `yaml:"books"`
	Users  bool `yaml:"users"`
	Borrow bool `yaml:"borrow"`
	Return bool `yaml:"return"`
}

type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Backend    string `yaml:"backend"` // memory | redis
	TTLSeconds int    `yaml:"ttl_seconds"`
	RedisAddr  string `yaml:"redis_addr"`
}

func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

type RateConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

type AuthConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Secret   string `yaml:"secret"`
	TokenTTL int    `yaml:"token_ttl_hours"`
}

func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Rate.RPS <= 0 {
		c.Rate.RPS = 100.0 / 60.0 // 100 req/min 相当
	}
	if c.Rate.Burst <= 0 {
		c.Rate.Burst = 20
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24
	}
}

// Default は設定ファイル無しで動かす場合の既定値（メモリストア、全機能有効）。
func Default() *Config {
	cfg := &Config{
		Database: DatabaseConfig{Driver: "memory"},
		Features: FeatureFlags{Books: true, Users: true, Borrow: true, Return: true},
		Cache:    CacheConfig{Enabled: true, Backend: "memory", TTLSeconds: 60},
		Rate:     RateConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}
