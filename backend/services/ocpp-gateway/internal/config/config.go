package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	libconfig "ocppgateway/backend/libs/config"
	"ocppgateway/backend/services/ocpp-gateway/internal/ocpp/protocol"
)

// Config defines OCPP gateway configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	OCPP         OCPPConfig         `yaml:"ocpp"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	Transactions TransactionsConfig `yaml:"transactions"`
	Billing      BillingConfig      `yaml:"billing"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Log          LogConfig          `yaml:"log"`
}

type HTTPConfig struct {
	Port string `yaml:"port" env:"OCPP_HTTP_PORT"`
}

type OCPPConfig struct {
	Subprotocols      []string      `yaml:"subprotocols" env:"OCPP_SUBPROTOCOLS"`
	DefaultProtocol   string        `yaml:"defaultProtocol" env:"OCPP_DEFAULT_PROTOCOL"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval" env:"OCPP_HEARTBEAT_INTERVAL"`
	CallTimeout       time.Duration `yaml:"callTimeout" env:"OCPP_CALL_TIMEOUT"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `yaml:"pingInterval" env:"OCPP_PING_INTERVAL"`
	WriteTimeout   time.Duration `yaml:"writeTimeout" env:"OCPP_WRITE_TIMEOUT"`
	ReadLimitBytes int64         `yaml:"readLimitBytes" env:"OCPP_READ_LIMIT_BYTES"`
}

type TransactionsConfig struct {
	CloseOnAvailable bool `yaml:"closeOnAvailable" env:"OCPP_CLOSE_ON_AVAILABLE"`
}

type BillingConfig struct {
	URL     string        `yaml:"url" env:"BILLING_BACKEND_URL"`
	Timeout time.Duration `yaml:"timeout" env:"BILLING_TIMEOUT"`
}

type DatabaseConfig struct {
	DSN           string `yaml:"dsn" env:"OCPP_POSTGRES_DSN"`
	JournalBuffer int    `yaml:"journalBuffer" env:"OCPP_JOURNAL_BUFFER"`
	MaxOpenConns  int    `yaml:"maxOpenConns" env:"OCPP_POSTGRES_MAX_OPEN_CONNS"`
	MaxIdleConns  int    `yaml:"maxIdleConns" env:"OCPP_POSTGRES_MAX_IDLE_CONNS"`
}

type RedisConfig struct {
	Addr        string        `yaml:"addr" env:"REDIS_ADDR"`
	Password    string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB          int           `yaml:"db" env:"REDIS_DB"`
	PresenceTTL time.Duration `yaml:"presenceTTL" env:"REDIS_PRESENCE_TTL"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker" env:"MQTT_BROKER"`
	ClientID    string `yaml:"clientId" env:"MQTT_CLIENT_ID"`
	TopicPrefix string `yaml:"topicPrefix" env:"MQTT_TOPIC_PREFIX"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL"`
	Encoding string `yaml:"encoding" env:"LOG_ENCODING"`
}

// Default returns configuration with every default applied.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{Port: "8080"},
		OCPP: OCPPConfig{
			Subprotocols:      []string{string(protocol.Version21), string(protocol.Version201), string(protocol.Version16)},
			DefaultProtocol:   string(protocol.Version16),
			HeartbeatInterval: 300 * time.Second,
			CallTimeout:       30 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval:   30 * time.Second,
			WriteTimeout:   10 * time.Second,
			ReadLimitBytes: 1 << 20,
		},
		Billing:  BillingConfig{Timeout: 5 * time.Second},
		Database: DatabaseConfig{JournalBuffer: 1024},
		Redis:    RedisConfig{PresenceTTL: 90 * time.Second},
		MQTT:     MQTTConfig{ClientID: "ocpp-gateway", TopicPrefix: "ocpp"},
		Log:      LogConfig{Level: "info", Encoding: "json"},
	}
}

// Load uses shared config loader and validates the result.
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	if _, err := c.Subprotocols(); err != nil {
		return err
	}
	if _, ok := protocol.ParseVersion(c.OCPP.DefaultProtocol); !ok {
		return fmt.Errorf("config: unsupported default protocol %q", c.OCPP.DefaultProtocol)
	}
	if c.OCPP.HeartbeatInterval <= 0 {
		return errors.New("config: ocpp.heartbeatInterval must be positive")
	}
	if c.OCPP.CallTimeout <= 0 {
		return errors.New("config: ocpp.callTimeout must be positive")
	}
	if c.WebSocket.PingInterval <= 0 {
		return errors.New("config: websocket.pingInterval must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("config: websocket.writeTimeout must be positive")
	}
	if c.WebSocket.ReadLimitBytes <= 0 {
		return errors.New("config: websocket.readLimitBytes must be positive")
	}
	if c.Billing.Timeout <= 0 {
		return errors.New("config: billing.timeout must be positive")
	}
	return nil
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8080"
	}
	if strings.Contains(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// Subprotocols returns the accepted subprotocols in preference order.
func (c *Config) Subprotocols() ([]protocol.Version, error) {
	if len(c.OCPP.Subprotocols) == 0 {
		return nil, errors.New("config: ocpp.subprotocols must not be empty")
	}
	versions := make([]protocol.Version, 0, len(c.OCPP.Subprotocols))
	for _, raw := range c.OCPP.Subprotocols {
		v, ok := protocol.ParseVersion(raw)
		if !ok {
			return nil, fmt.Errorf("config: unsupported subprotocol %q", raw)
		}
		versions = append(versions, v)
	}
	return versions, nil
}

// DefaultProtocol returns the version used when a station offers none.
func (c *Config) DefaultProtocol() protocol.Version {
	v, _ := protocol.ParseVersion(c.OCPP.DefaultProtocol)
	return v
}

// PongWait is how long a silent connection survives.
func (c *Config) PongWait() time.Duration {
	return 2 * c.WebSocket.PingInterval
}

// HTTPWriteTimeout outlasts the longest station call a control request waits on.
func (c *Config) HTTPWriteTimeout() time.Duration {
	return c.OCPP.CallTimeout + 15*time.Second
}
