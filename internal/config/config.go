package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	OrdersAPI OrdersAPIConfig `json:"orders_api"`
	Stripe    StripeConfig    `json:"stripe"`
	Kafka     KafkaConfig     `json:"kafka"`
	Checkout  CheckoutConfig  `json:"checkout"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// MetricsAddr moves /metrics and /api/support to their own listener when set.
	MetricsAddr string `json:"metrics_addr"`
	// ExposeSupport serves /api/support on the public port when MetricsAddr
	// is empty. The support routes carry no authentication.
	ExposeSupport   bool     `json:"expose_support"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host           string `json:"host"`
	Port           int    `json:"port"`
	User           string `json:"user"`
	Password       string `json:"password"`
	DBName         string `json:"dbname"`
	SSLMode        string `json:"sslmode"`
	MigrationsPath string `json:"migrations_path"`
	MaxOpenConns   int    `json:"max_open_conns"`
	MaxIdleConns   int    `json:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type OrdersAPIConfig struct {
	BaseURL         string   `json:"base_url"`
	Timeout         Duration `json:"timeout"`
	BreakerFailures uint32   `json:"breaker_failures"` // consecutive config/intent failures before the breaker opens
	BreakerCooldown Duration `json:"breaker_cooldown"`
}

type StripeConfig struct {
	SecretKey string   `json:"secret_key"`
	ReturnURL string   `json:"return_url"`
	Timeout   Duration `json:"timeout"`
}

type KafkaConfig struct {
	Brokers         string `json:"brokers"`
	CartEventsTopic string `json:"cart_events_topic"`
	ConsumerGroupID string `json:"consumer_group_id"`
}

type CheckoutConfig struct {
	Currency          string   `json:"currency"`
	SuccessRedirect   string   `json:"success_redirect"`
	SessionTTL        Duration `json:"session_ttl"`
	TerminalRetention Duration `json:"terminal_retention"`
	ReapInterval      Duration `json:"reap_interval"`
	NotificationTTL   Duration `json:"notification_ttl"`
}

// Duration decodes from a JSON string such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}

	config.applyEnv()
	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		c.Stripe.SecretKey = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("ORDERS_API_BASE_URL"); v != "" {
		c.OrdersAPI.BaseURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout.Duration == 0 {
		c.Server.ShutdownTimeout.Duration = 30 * time.Second
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MigrationsPath == "" {
		c.Database.MigrationsPath = "./internal/infrastructure/persistence/postgres/migrations"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = c.Database.MaxOpenConns / 2
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 20
	}
	if c.OrdersAPI.Timeout.Duration == 0 {
		c.OrdersAPI.Timeout.Duration = 10 * time.Second
	}
	if c.OrdersAPI.BreakerFailures == 0 {
		c.OrdersAPI.BreakerFailures = 5
	}
	if c.OrdersAPI.BreakerCooldown.Duration == 0 {
		c.OrdersAPI.BreakerCooldown.Duration = 30 * time.Second
	}
	if c.Stripe.Timeout.Duration == 0 {
		c.Stripe.Timeout.Duration = 30 * time.Second
	}
	if c.Kafka.CartEventsTopic == "" {
		c.Kafka.CartEventsTopic = "cart-replaced"
	}
	if c.Kafka.ConsumerGroupID == "" {
		c.Kafka.ConsumerGroupID = "checkout-service"
	}
	if c.Checkout.Currency == "" {
		c.Checkout.Currency = "SEK"
	}
	if c.Checkout.SuccessRedirect == "" {
		c.Checkout.SuccessRedirect = "/horoscope"
	}
	if c.Checkout.SessionTTL.Duration == 0 {
		c.Checkout.SessionTTL.Duration = 30 * time.Minute
	}
	if c.Checkout.TerminalRetention.Duration == 0 {
		c.Checkout.TerminalRetention.Duration = 5 * time.Minute
	}
	if c.Checkout.ReapInterval.Duration == 0 {
		c.Checkout.ReapInterval.Duration = time.Minute
	}
	if c.Checkout.NotificationTTL.Duration == 0 {
		c.Checkout.NotificationTTL.Duration = 3 * time.Second
	}
}

func (c *DatabaseConfig) GetDSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

func (c *DatabaseConfig) GetURL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) +
		"/" + c.DBName + "?sslmode=" + c.SSLMode
}

func (c *RedisConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
