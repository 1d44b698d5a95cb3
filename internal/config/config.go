package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wanderlog/service-payment/internal/adapter"
	"github.com/wanderlog/service-payment/internal/common/config"
)

// Gateway modes.
const (
	MomoModeLive = "live"
	MomoModeMock = "mock"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageBolt     = "bolt"
)

// MomoConfig holds MoMo Collections settings.
type MomoConfig struct {
	Mode              string
	BaseURL           string
	SubscriptionKey   string
	APIUser           string
	APIKey            string
	TargetEnvironment string
	CallbackHost      string
	Timeout           time.Duration
	StatusRetries     uint64
	// MockOutcome is the provider status the mock gateway reports.
	MockOutcome string
}

// StorageConfig selects the payment store.
type StorageConfig struct {
	Driver   string
	BoltPath string
}

// ReconcileConfig tunes the background sweep of stale pending payments.
type ReconcileConfig struct {
	Enabled   bool
	Interval  time.Duration
	Grace     time.Duration
	BatchSize int
}

// ReceiptConfig holds receipt rendering settings.
type ReceiptConfig struct {
	VerifyBaseURL string
	QRSize        int
}

// ServiceConfig holds all configuration for the payment service.
type ServiceConfig struct {
	Port            string
	AppEnv          string
	DBConfig        config.DatabaseConfig
	JWTConfig       config.JWTConfig
	KafkaConfig     config.KafkaConfig
	MomoConfig      MomoConfig
	StorageConfig   StorageConfig
	ReconcileConfig ReconcileConfig
	ReceiptConfig   ReceiptConfig
	ResolveTimeout  time.Duration
	PayerMessage    string
	PayeeNote       string
}

// Load reads configuration from environment variables and returns a ServiceConfig.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("payment")
	if err != nil {
		return nil, err
	}
	setDefaults(v, config.GetAppEnv(v))

	cfg := &ServiceConfig{
		Port:            config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:          config.GetAppEnv(v),
		DBConfig:        config.LoadDatabaseConfig(v, "DB_NAME"),
		JWTConfig:       config.LoadJWTConfig(v),
		KafkaConfig:     config.LoadKafkaConfig(v),
		MomoConfig:      loadMomoConfig(v),
		StorageConfig:   loadStorageConfig(v),
		ReconcileConfig: loadReconcileConfig(v),
		ReceiptConfig: ReceiptConfig{
			VerifyBaseURL: v.GetString("RECEIPT_VERIFY_BASE_URL"),
			QRSize:        v.GetInt("RECEIPT_QR_SIZE"),
		},
		ResolveTimeout: v.GetDuration("PAYMENT_RESOLVE_TIMEOUT"),
		PayerMessage:   v.GetString("PAYMENT_PAYER_MESSAGE"),
		PayeeNote:      v.GetString("PAYMENT_PAYEE_NOTE"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, appEnv string) {
	if appEnv == "development" {
		v.SetDefault("MOMO_MODE", MomoModeMock)
	} else {
		v.SetDefault("MOMO_MODE", MomoModeLive)
	}
	v.SetDefault("MOMO_BASE_URL", "https://sandbox.momodeveloper.mtn.com")
	v.SetDefault("MOMO_TARGET_ENVIRONMENT", "sandbox")
	v.SetDefault("MOMO_TIMEOUT", "15s")
	v.SetDefault("MOMO_STATUS_RETRIES", 3)
	v.SetDefault("MOMO_MOCK_OUTCOME", "SUCCESSFUL")
	v.SetDefault("STORAGE_DRIVER", StoragePostgres)
	v.SetDefault("BOLT_PATH", "payments.db")
	v.SetDefault("RECONCILE_ENABLED", true)
	v.SetDefault("RECONCILE_INTERVAL", "1m")
	v.SetDefault("RECONCILE_GRACE", "10m")
	v.SetDefault("RECONCILE_BATCH_SIZE", 100)
	v.SetDefault("RECEIPT_VERIFY_BASE_URL", "http://localhost:8080")
	v.SetDefault("RECEIPT_QR_SIZE", 256)
	v.SetDefault("PAYMENT_RESOLVE_TIMEOUT", "30s")
	v.SetDefault("PAYMENT_PAYER_MESSAGE", "Travel booking payment")
	v.SetDefault("PAYMENT_PAYEE_NOTE", "Booking payment")
}

// loadMomoConfig extracts MoMo configuration from Viper.
func loadMomoConfig(v *viper.Viper) MomoConfig {
	return MomoConfig{
		Mode:              strings.ToLower(v.GetString("MOMO_MODE")),
		BaseURL:           v.GetString("MOMO_BASE_URL"),
		SubscriptionKey:   v.GetString("MOMO_SUBSCRIPTION_KEY"),
		APIUser:           v.GetString("MOMO_API_USER"),
		APIKey:            v.GetString("MOMO_API_KEY"),
		TargetEnvironment: v.GetString("MOMO_TARGET_ENVIRONMENT"),
		CallbackHost:      v.GetString("MOMO_CALLBACK_HOST"),
		Timeout:           v.GetDuration("MOMO_TIMEOUT"),
		StatusRetries:     v.GetUint64("MOMO_STATUS_RETRIES"),
		MockOutcome:       strings.ToUpper(v.GetString("MOMO_MOCK_OUTCOME")),
	}
}

func loadStorageConfig(v *viper.Viper) StorageConfig {
	return StorageConfig{
		Driver:   strings.ToLower(v.GetString("STORAGE_DRIVER")),
		BoltPath: v.GetString("BOLT_PATH"),
	}
}

func loadReconcileConfig(v *viper.Viper) ReconcileConfig {
	return ReconcileConfig{
		Enabled:   v.GetBool("RECONCILE_ENABLED"),
		Interval:  v.GetDuration("RECONCILE_INTERVAL"),
		Grace:     v.GetDuration("RECONCILE_GRACE"),
		BatchSize: v.GetInt("RECONCILE_BATCH_SIZE"),
	}
}

func (c *ServiceConfig) validate() error {
	switch c.MomoConfig.Mode {
	case MomoModeMock:
		if c.AppEnv != "development" {
			return fmt.Errorf("MOMO_MODE=mock is only allowed with APP_ENV=development, got %q", c.AppEnv)
		}
		if _, ok := adapter.MapProviderStatus(c.MomoConfig.MockOutcome); !ok {
			return fmt.Errorf("unknown MOMO_MOCK_OUTCOME %q", c.MomoConfig.MockOutcome)
		}
	case MomoModeLive:
		m := c.MomoConfig
		if m.SubscriptionKey == "" || m.APIUser == "" || m.APIKey == "" {
			return fmt.Errorf("MOMO_MODE=live requires MOMO_SUBSCRIPTION_KEY, MOMO_API_USER and MOMO_API_KEY")
		}
	default:
		return fmt.Errorf("unknown MOMO_MODE %q", c.MomoConfig.Mode)
	}

	switch c.StorageConfig.Driver {
	case StoragePostgres, StorageBolt:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageConfig.Driver)
	}

	if c.ReconcileConfig.Enabled && c.ReconcileConfig.Interval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	return nil
}
