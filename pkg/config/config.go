package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	User       struct {
		ID    string `mapstructure:"ID"`
		Token string `mapstructure:"TOKEN"`
	} `mapstructure:"USER"`
	API struct {
		BaseURL      string        `mapstructure:"BASE_URL"`
		Timeout      time.Duration `mapstructure:"TIMEOUT"`
		MaxRetries   int           `mapstructure:"MAX_RETRIES"`
		RetryBackoff time.Duration `mapstructure:"RETRY_BACKOFF"`
	} `mapstructure:"API"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Feed struct {
		ResubscribeInitial time.Duration `mapstructure:"RESUBSCRIBE_INITIAL"`
		ResubscribeMax     time.Duration `mapstructure:"RESUBSCRIBE_MAX"`
	} `mapstructure:"FEED"`
	LocalStore struct {
		Path string `mapstructure:"PATH"`
	} `mapstructure:"LOCAL_STORE"`
	Diag struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"DIAG"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	applyDefaults(&cfg)

	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 15 * time.Second
	}
	if cfg.API.MaxRetries == 0 {
		cfg.API.MaxRetries = 3
	}
	if cfg.API.RetryBackoff == 0 {
		cfg.API.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.Feed.ResubscribeInitial == 0 {
		cfg.Feed.ResubscribeInitial = time.Second
	}
	if cfg.Feed.ResubscribeMax == 0 {
		cfg.Feed.ResubscribeMax = time.Minute
	}
	if cfg.LocalStore.Path == "" {
		cfg.LocalStore.Path = "tablerewards.db"
	}
	if cfg.Diag.Addr == "" {
		cfg.Diag.Addr = "127.0.0.1:9464"
	}
}
