// Package config loads qrpay settings from defaults, an optional YAML file and
// QRPAY_* environment variables, in increasing priority.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "QRPAY"

type Config struct {
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
	Notify  NotifyConfig  `mapstructure:"notify" yaml:"notify"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	GRPC    GRPCConfig    `mapstructure:"grpc" yaml:"grpc"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Sandbox SandboxConfig `mapstructure:"sandbox" yaml:"sandbox"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type GatewayConfig struct {
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	ProjectID   string        `mapstructure:"project_id" yaml:"project_id"`
	RequestPath string        `mapstructure:"request_path" yaml:"request_path"`
	QueryPath   string        `mapstructure:"query_path" yaml:"query_path"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type NotifyConfig struct {
	// Transport is "sse" or "kafka".
	Transport        string        `mapstructure:"transport" yaml:"transport"`
	WebhookPath      string        `mapstructure:"webhook_path" yaml:"webhook_path"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	KafkaBrokers     []string      `mapstructure:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic       string        `mapstructure:"kafka_topic" yaml:"kafka_topic"`
	KafkaLookback    time.Duration `mapstructure:"kafka_lookback" yaml:"kafka_lookback"`
}

type SessionConfig struct {
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`
	TickInterval   time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	TxnIDPrefix    string        `mapstructure:"txn_id_prefix" yaml:"txn_id_prefix"`
	NotifyMobile   bool          `mapstructure:"notify_mobile" yaml:"notify_mobile"`
}

type StoreConfig struct {
	// Driver is "memory", "sqlite" or "postgres".
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	DSN       string `mapstructure:"dsn" yaml:"dsn"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type SandboxConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Scenarios string `mapstructure:"scenarios" yaml:"scenarios"`
	// ScanAfter is how long an unscripted payment waits before the sandbox confirms it.
	ScanAfter    time.Duration `mapstructure:"scan_after" yaml:"scan_after"`
	KafkaBrokers []string      `mapstructure:"kafka_brokers" yaml:"kafka_brokers"`
	KafkaTopic   string        `mapstructure:"kafka_topic" yaml:"kafka_topic"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:     "https://sandbox.nets.openapipaas.com",
			RequestPath: "/api/v1/common/payments/nets-qr/request",
			QueryPath:   "/api/v1/common/payments/nets-qr/query",
			Timeout:     15 * time.Second,
		},
		Notify: NotifyConfig{
			Transport:        "sse",
			WebhookPath:      "/api/v1/common/payments/nets/webhook",
			HeartbeatTimeout: 150 * time.Second,
			KafkaTopic:       "qrpay.notifications",
			KafkaLookback:    time.Minute,
		},
		Session: SessionConfig{
			ConfirmTimeout: 300 * time.Second,
			TickInterval:   time.Second,
			TxnIDPrefix:    "sandbox_nets|m|",
		},
		Store: StoreConfig{
			Driver:    "sqlite",
			Path:      "qrpay.db",
			Namespace: "default",
		},
		GRPC:    GRPCConfig{Addr: ":50061"},
		Metrics: MetricsConfig{Addr: ":9102"},
		Sandbox: SandboxConfig{
			Addr:       ":8089",
			ScanAfter:  3 * time.Second,
			KafkaTopic: "qrpay.notifications",
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads path (if non-empty) on top of Default and applies environment
// overrides such as QRPAY_GATEWAY_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	if err := setDefaults(v, Default()); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key of d so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) error {
	raw, err := yaml.Marshal(d)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return err
	}
	walk("", tree, v.SetDefault)
	return nil
}

func walk(prefix string, node map[string]any, set func(string, any)) {
	for k, val := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := val.(map[string]any); ok {
			walk(key, child, set)
			continue
		}
		set(key, val)
	}
}

func (c *Config) Validate() error {
	switch c.Notify.Transport {
	case "sse":
		if c.Gateway.BaseURL == "" {
			return fmt.Errorf("config: gateway.base_url is required for the sse transport")
		}
	case "kafka":
		if len(c.Notify.KafkaBrokers) == 0 || c.Notify.KafkaTopic == "" {
			return fmt.Errorf("config: notify.kafka_brokers and notify.kafka_topic are required for the kafka transport")
		}
	default:
		return fmt.Errorf("config: unknown notify.transport %q", c.Notify.Transport)
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("config: store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}

	if c.Session.ConfirmTimeout <= 0 || c.Session.TickInterval <= 0 {
		return fmt.Errorf("config: session timeouts must be positive")
	}
	return nil
}

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	masked := *c
	if masked.Gateway.APIKey != "" {
		masked.Gateway.APIKey = "****"
	}
	if masked.Store.DSN != "" {
		masked.Store.DSN = "****"
	}
	return yaml.Marshal(&masked)
}
