// internal/config/config.go
package config

import (
	"time"

	"github.com/spf13/viper"
)

// WhatsAppConfig holds the messaging vendor credentials. Everything lives in
// this struct; there is no ambient credential state anywhere else.
type WhatsAppConfig struct {
	AccountSID  string `mapstructure:"account_sid"`
	AuthToken   string `mapstructure:"auth_token"`
	From        string `mapstructure:"from"`
	TemplateSID string `mapstructure:"template_sid"`
	APIBase     string `mapstructure:"api_base"`
}

// Config holds all configuration for our application.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	PostgresHost       string        `mapstructure:"postgres_host"`
	PostgresPort       int           `mapstructure:"postgres_port"`
	PostgresUser       string        `mapstructure:"postgres_user"`
	PostgresPassword   string        `mapstructure:"postgres_password"`
	PostgresDB         string        `mapstructure:"postgres_db"`
	PostgresInitScript string        `mapstructure:"postgres_init_script"`
	EtcdEndpoints      []string      `mapstructure:"etcd_endpoints"`
	EtcdTimeout        time.Duration `mapstructure:"etcd_timeout"`
	HttpListenAddr     string        `mapstructure:"http_listen_addr"`
	LeaderElectionTTL  time.Duration `mapstructure:"leader_election_ttl"`

	// DispatchInterval is the dispatch loop cadence; DispatchBatchSize bounds
	// how many sessions one run may fan out.
	DispatchInterval  time.Duration `mapstructure:"dispatch_interval"`
	DispatchBatchSize int           `mapstructure:"dispatch_batch_size"`
	NotifySendTimeout time.Duration `mapstructure:"notify_send_timeout"`

	// Notifier selects the outbound channel: "whatsapp" or "amqp".
	Notifier     string         `mapstructure:"notifier"`
	WhatsApp     WhatsAppConfig `mapstructure:"whatsapp"`
	AmqpURL      string         `mapstructure:"amqp_url"`
	AmqpExchange string         `mapstructure:"amqp_exchange"`
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	// Set default values
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "postgres")
	viper.SetDefault("postgres_db", "provider_dispatch")
	viper.SetDefault("postgres_init_script", "deploy/init.sql")
	viper.SetDefault("etcd_timeout", "5s")
	viper.SetDefault("http_listen_addr", ":8080")
	viper.SetDefault("leader_election_ttl", "10s")
	viper.SetDefault("dispatch_interval", "40s")
	viper.SetDefault("dispatch_batch_size", 5)
	viper.SetDefault("notify_send_timeout", "10s")
	viper.SetDefault("notifier", "whatsapp")
	viper.SetDefault("amqp_exchange", "provider-notifications")

	// Set config file details
	viper.SetConfigName("config")    // name of config file (without extension)
	viper.SetConfigType("yaml")      // or "json", "toml"
	viper.AddConfigPath("./configs") // path to look for the config file in
	viper.AddConfigPath(".")         // optionally look for config in the working directory

	// Read environment variables
	viper.AutomaticEnv()

	// Read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error if desired
			// We can rely on defaults and env vars
		} else {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
