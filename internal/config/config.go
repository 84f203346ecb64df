package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// FallbackUserAgent 未配置时写入会话快照的回放 UA
	FallbackUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/144.0.0.0 Safari/537.36"

	envPrefix      = "APIHARVEST"
	configFileName = "config"
	configFileType = "json"
)

// Config 配置文件结构体
type Config struct {
	DataDir        string `mapstructure:"data_dir" json:"data_dir"`
	UserAgent      string `mapstructure:"user_agent" json:"user_agent"`
	DevToolsURL    string `mapstructure:"devtools_url" json:"devtools_url"`
	PollIntervalMS int    `mapstructure:"poll_interval_ms" json:"poll_interval_ms"`
	EvalTimeoutMS  int    `mapstructure:"eval_timeout_ms" json:"eval_timeout_ms"`
	BatchEvery     int    `mapstructure:"batch_every" json:"batch_every"`

	Sqlite struct {
		Dsn    string `mapstructure:"dsn" json:"dsn"`
		Prefix string `mapstructure:"prefix" json:"prefix"`
	} `mapstructure:"sqlite" json:"sqlite"`

	Log struct {
		Level  string   `mapstructure:"level" json:"level"`
		Writer []string `mapstructure:"writer" json:"writer"`
	} `mapstructure:"log" json:"log"`
}

// PollInterval 命令轮询间隔
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return 300 * time.Millisecond
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// EvalTimeout 脚本求值超时
func (c *Config) EvalTimeout() time.Duration {
	if c.EvalTimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.EvalTimeoutMS) * time.Millisecond
}

// ReplayUserAgent 会话快照中使用的 UA
func (c *Config) ReplayUserAgent() string {
	if c.UserAgent == "" {
		return FallbackUserAgent
	}
	return c.UserAgent
}

// SqlitePath sqlite 文件路径，相对路径落在数据目录下
func (c *Config) SqlitePath() string {
	if c.Sqlite.Dsn == "" || filepath.IsAbs(c.Sqlite.Dsn) || c.Sqlite.Dsn == ":memory:" {
		return c.Sqlite.Dsn
	}
	return filepath.Join(c.DataDir, c.Sqlite.Dsn)
}

// LogFile 滚动日志文件路径
func (c *Config) LogFile() string {
	return filepath.Join(c.DataDir, "logs", "apiharvest.log")
}

// DefaultDataDir 默认数据目录 ~/.apiharvest
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".apiharvest"
	}
	return filepath.Join(home, ".apiharvest")
}

// SetDefaults 写入默认值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("user_agent", "")
	v.SetDefault("devtools_url", "http://127.0.0.1:9222")
	v.SetDefault("poll_interval_ms", 300)
	v.SetDefault("eval_timeout_ms", 10000)
	v.SetDefault("batch_every", 50)
	v.SetDefault("sqlite.dsn", "history.sqlite3")
	v.SetDefault("sqlite.prefix", "apiharvest_")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.writer", []string{"console", "file"})
}

// Load 读取默认值、环境变量与 <data_dir>/config.json
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(v.GetString("data_dir"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.DataDir == "" {
		return nil, errors.New("data dir is empty")
	}
	if cfg.UserAgent != "" {
		ua, err := CleanUserAgent(cfg.UserAgent)
		if err != nil {
			return nil, err
		}
		cfg.UserAgent = ua
	}
	if cfg.BatchEvery <= 0 {
		cfg.BatchEvery = 50
	}
	return cfg, nil
}

// CleanUserAgent 去掉首尾引号并校验 UA
func CleanUserAgent(raw string) (string, error) {
	ua := strings.TrimSpace(raw)
	for len(ua) >= 2 {
		first, last := ua[0], ua[len(ua)-1]
		if first != last || (first != '"' && first != '\'' && first != '`') {
			break
		}
		ua = strings.TrimSpace(ua[1 : len(ua)-1])
	}
	if !strings.Contains(ua, "Mozilla") {
		return "", fmt.Errorf("user agent %q does not look like a browser UA (expected Mozilla/5.0 ...)", ua)
	}
	return ua, nil
}
