package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers understood by the container
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// GatewayConfig holds all configuration of the plant gateway
type GatewayConfig struct {
	Server       ServerConfig       `json:"server"`
	Store        StoreConfig        `json:"store"`
	MQTT         MQTTConfig         `json:"mqtt"`
	Scheduler    SchedulerConfig    `json:"scheduler"`
	Thresholds   ThresholdDefaults  `json:"thresholds"`
	Provisioning ProvisioningConfig `json:"provisioning"`
	Seed         SeedBrokerConfig   `json:"seed"`
	Alerts       AlertsConfig       `json:"alerts"`
	Logging      LoggingConfig      `json:"logging"`

	// Bearer secret expected on /internal routes
	InternalAPISecret string `json:"-"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string        `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	CORSOrigins  []string      `json:"cors_origins"`
}

// StoreConfig selects and configures the persistent store
type StoreConfig struct {
	Driver   string         `json:"driver"`
	MongoURI string         `json:"-"`
	Database string         `json:"database"`
	Postgres DatabaseConfig `json:"postgres"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
	MinConns int    `json:"min_conns"`
}

// MQTTConfig holds the gateway's own broker client settings. Broker
// addresses are not configured here, they come from the broker store.
type MQTTConfig struct {
	ClientID         string        `json:"client_id"`
	Username         string        `json:"username"`
	Password         string        `json:"-"`
	UseTLS           bool          `json:"use_tls"`
	CACertPath       string        `json:"ca_cert_path"`
	KeepAlive        time.Duration `json:"keep_alive"`
	PingTimeout      time.Duration `json:"ping_timeout"`
	ConnectTimeout   time.Duration `json:"connect_timeout"`
	OperationTimeout time.Duration `json:"operation_timeout"`
}

// SchedulerConfig drives the broker reconciliation loop
type SchedulerConfig struct {
	ReconcileInterval  time.Duration `json:"reconcile_interval"`
	MaxParallelDialing int           `json:"max_parallel_dialing"`
}

// ThresholdDefaults are applied to a device when it is claimed
type ThresholdDefaults struct {
	MinAmbientHumidity int     `json:"min_ambient_humidity"`
	MaxAmbientHumidity int     `json:"max_ambient_humidity"`
	MinSoilHumidity    int     `json:"min_soil_humidity"`
	MaxSoilHumidity    int     `json:"max_soil_humidity"`
	MinTempC           float64 `json:"min_temp_c"`
	MaxTempC           float64 `json:"max_temp_c"`
	MinLightLux        int     `json:"min_light_lux"`
	MaxLightLux        int     `json:"max_light_lux"`
}

// ProvisioningConfig holds the shared credentials used by unclaimed hardware
type ProvisioningConfig struct {
	Username string `json:"username"`
	Password string `json:"-"`
}

// SeedBrokerConfig describes the broker inserted when the broker store is empty
type SeedBrokerConfig struct {
	Enabled bool   `json:"enabled"`
	Name    string `json:"name"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// AlertsConfig signs the tokens that open an alerts websocket. An empty
// TokenSecret leaves the socket keyed by the user_id query parameter alone.
type AlertsConfig struct {
	TokenSecret string        `json:"-"`
	TokenTTL    time.Duration `json:"token_ttl"`
	Issuer      string        `json:"issuer"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	Output       string `json:"output"` // stdout, stderr, or file path
	EnableCaller bool   `json:"enable_caller"`
}

// DefaultThresholds returns the thresholds applied when nothing is configured
func DefaultThresholds() ThresholdDefaults {
	return ThresholdDefaults{
		MinAmbientHumidity: 30,
		MaxAmbientHumidity: 100,
		MinSoilHumidity:    30,
		MaxSoilHumidity:    100,
		MinTempC:           -10.0,
		MaxTempC:           35.0,
		MinLightLux:        150,
		MaxLightLux:        10000,
	}
}

// LoadGatewayConfig loads configuration from environment variables with fallback defaults
func LoadGatewayConfig() (*GatewayConfig, error) {
	// A missing .env file is fine, variables may be set directly
	_ = godotenv.Load()

	defaults := DefaultThresholds()

	config := &GatewayConfig{
		Server: ServerConfig{
			Port:         getEnv("GATEWAY_PORT", "9004"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
			CORSOrigins:  getStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(getEnv("STORE_DRIVER", StoreMongo)),
			MongoURI: getEnv("MONGODB_URI", ""),
			Database: getEnv("DB_NAME", "plantcare"),
			Postgres: DatabaseConfig{
				Host:     getEnv("POSTGRES_HOST", "localhost"),
				Port:     getInt("POSTGRES_PORT", 5432),
				User:     getEnv("POSTGRES_USER", ""),
				Password: getEnv("POSTGRES_PASSWORD", ""),
				DBName:   getEnv("POSTGRES_DB", "plantcare"),
				SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
				MaxConns: getInt("POSTGRES_MAX_CONNS", 25),
				MinConns: getInt("POSTGRES_MIN_CONNS", 5),
			},
		},
		MQTT: MQTTConfig{
			ClientID:         getEnv("MQTT_CLIENT_ID", "plant-gateway"),
			Username:         getEnv("MQTT_BACKEND_USERNAME", "backend"),
			Password:         getEnv("MQTT_BACKEND_PASSWORD", ""),
			UseTLS:           getBool("BROKER_TLS", false),
			CACertPath:       getEnv("BROKER_CA_FILE", ""),
			KeepAlive:        getDuration("MQTT_KEEP_ALIVE", 30*time.Second),
			PingTimeout:      getDuration("MQTT_PING_TIMEOUT", 10*time.Second),
			ConnectTimeout:   getDuration("MQTT_CONNECT_TIMEOUT", 10*time.Second),
			OperationTimeout: getDuration("MQTT_OPERATION_TIMEOUT", 5*time.Second),
		},
		Scheduler: SchedulerConfig{
			ReconcileInterval:  getDuration("BROKER_RECONCILE_INTERVAL", 30*time.Second),
			MaxParallelDialing: getInt("BROKER_MAX_PARALLEL_DIAL", 4),
		},
		Thresholds: ThresholdDefaults{
			MinAmbientHumidity: getInt("THRESHOLD_AMBIENT_HUMIDITY_MIN", defaults.MinAmbientHumidity),
			MaxAmbientHumidity: getInt("THRESHOLD_AMBIENT_HUMIDITY_MAX", defaults.MaxAmbientHumidity),
			MinSoilHumidity:    getInt("THRESHOLD_SOIL_HUMIDITY_MIN", defaults.MinSoilHumidity),
			MaxSoilHumidity:    getInt("THRESHOLD_SOIL_HUMIDITY_MAX", defaults.MaxSoilHumidity),
			MinTempC:           getFloat("THRESHOLD_TEMPERATURE_MIN", defaults.MinTempC),
			MaxTempC:           getFloat("THRESHOLD_TEMPERATURE_MAX", defaults.MaxTempC),
			MinLightLux:        getInt("THRESHOLD_LIGHT_MIN", defaults.MinLightLux),
			MaxLightLux:        getInt("THRESHOLD_LIGHT_MAX", defaults.MaxLightLux),
		},
		Provisioning: ProvisioningConfig{
			Username: getEnv("PROVISION_USERNAME", "provision_user"),
			Password: getEnv("PROVISION_PASSWORD", "provision_pass"),
		},
		Seed: SeedBrokerConfig{
			Enabled: getBool("SEED_BROKER_ENABLED", false),
			Name:    getEnv("SEED_BROKER_NAME", "local-broker"),
			Host:    getEnv("SEED_BROKER_HOST", "localhost"),
			Port:    getInt("SEED_BROKER_PORT", 1883),
		},
		Alerts: AlertsConfig{
			TokenSecret: getEnv("ALERTS_TOKEN_SECRET", ""),
			TokenTTL:    getDuration("ALERTS_TOKEN_TTL", 15*time.Minute),
			Issuer:      getEnv("ALERTS_TOKEN_ISSUER", "plant-gateway"),
		},
		Logging: LoggingConfig{
			Level:        getEnv("LOG_LEVEL", "info"),
			Format:       getEnv("LOG_FORMAT", "text"),
			Output:       getEnv("LOG_OUTPUT", "stdout"),
			EnableCaller: getBool("LOG_ENABLE_CALLER", false),
		},
		InternalAPISecret: getEnv("INTERNAL_API_SECRET", ""),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *GatewayConfig) Validate() error {
	if c.Scheduler.ReconcileInterval <= 0 {
		return fmt.Errorf("BROKER_RECONCILE_INTERVAL must be positive")
	}
	if c.Scheduler.MaxParallelDialing < 1 {
		return fmt.Errorf("BROKER_MAX_PARALLEL_DIAL must be at least 1")
	}

	switch c.Store.Driver {
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo store")
		}
	case StorePostgres:
		if c.Store.Postgres.User == "" {
			return fmt.Errorf("POSTGRES_USER is required for the postgres store")
		}
		if c.Store.Postgres.Password == "" {
			return fmt.Errorf("POSTGRES_PASSWORD is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	t := c.Thresholds
	if t.MinAmbientHumidity > t.MaxAmbientHumidity || t.MinSoilHumidity > t.MaxSoilHumidity ||
		t.MinTempC > t.MaxTempC || t.MinLightLux > t.MaxLightLux {
		return fmt.Errorf("default thresholds have min greater than max")
	}

	if c.Alerts.TokenSecret != "" && c.Alerts.TokenTTL <= 0 {
		return fmt.Errorf("ALERTS_TOKEN_TTL must be positive")
	}

	if c.InternalAPISecret == "" {
		log.Println("WARNING: INTERNAL_API_SECRET is empty, /internal routes will reject every request")
	}
	return nil
}

// GetDatabaseDSN returns the PostgreSQL connection string
func (c *GatewayConfig) GetDatabaseDSN() string {
	db := c.Store.Postgres
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.User, db.Password, db.DBName, db.SSLMode)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return intValue
}

func getFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return f
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "1" || value == "true" || value == "TRUE" {
		return true
	}
	if value == "0" || value == "false" || value == "FALSE" {
		return false
	}
	log.Fatalf("invalid %s: %q (expected true/false or 1/0)", key, value)
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return duration
}

func getStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
