package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Engine struct {
		URL     string        `mapstructure:"url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"engine"`
	Webhooks struct {
		// Empty URLs disable the corresponding webhook.
		ApprovalURL string        `mapstructure:"approval_url"`
		LinkURL     string        `mapstructure:"link_url"`
		Timeout     time.Duration `mapstructure:"timeout"`
	} `mapstructure:"webhooks"`
	Worker struct {
		PollInterval   time.Duration `mapstructure:"poll_interval"`
		DefaultModelID string        `mapstructure:"default_model_id"`
	} `mapstructure:"worker"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("IMAGEFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", 5432)
	viper.SetDefault("db.user", "imageflow")
	viper.SetDefault("db.password", "imageflow")
	viper.SetDefault("db.name", "imageflow")
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("engine.url", "http://localhost:9090")
	viper.SetDefault("engine.timeout", 10*time.Minute)
	viper.SetDefault("webhooks.timeout", 10*time.Second)
	viper.SetDefault("worker.poll_interval", 5*time.Second)
	viper.SetDefault("worker.default_model_id", "stabilityai/stable-diffusion-xl-base-1.0")

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults and env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Webhooks.ApprovalURL = strings.TrimSpace(config.Webhooks.ApprovalURL)
	config.Webhooks.LinkURL = strings.TrimSpace(config.Webhooks.LinkURL)

	return &config, nil
}
