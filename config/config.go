package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Gateway configuration
	GatewayProvider string
	GatewayTimeout  time.Duration
	WebhookSecret   string

	// YesPay provider credentials
	YesPayBaseURL    string
	YesPayPartnerID  string
	YesPayClientID   string
	YesPayClientKey  string
	YesPayHMACKey    string
	YesPayMerchantID string
	YesPayCurrency   string

	// YesPay PubNub transaction feed
	YesPayPNSubKey    string
	YesPayPNSubSecret string
	YesPayPNUUID      string
	YesPayPNChannel   string
	YesPayPNCipherKey string

	// PubNub configuration (user notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Ticket configuration
	TicketSigningKey string

	// Check-in window policy
	EarlyEntryWindow   time.Duration
	CheckinGracePeriod time.Duration

	// Timeout configuration
	PaymentTimeout    time.Duration
	ReconcileInterval time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Gateway
		GatewayProvider: getEnv("GATEWAY_PROVIDER", "sandbox"),
		GatewayTimeout:  getEnvAsDuration("GATEWAY_TIMEOUT", "10s"),
		WebhookSecret:   getEnv("WEBHOOK_SECRET", "dev-webhook-secret"),

		// YesPay
		YesPayBaseURL:    getEnv("YESPAY_BASE_URL", ""),
		YesPayPartnerID:  getEnv("YESPAY_PARTNER_ID", ""),
		YesPayClientID:   getEnv("YESPAY_CLIENT_ID", ""),
		YesPayClientKey:  getEnv("YESPAY_CLIENT_KEY", ""),
		YesPayHMACKey:    getEnv("YESPAY_HMAC_KEY", ""),
		YesPayMerchantID: getEnv("YESPAY_MERCHANT_ID", ""),
		YesPayCurrency:   getEnv("YESPAY_CURRENCY", "LAK"),

		YesPayPNSubKey:    getEnv("YESPAY_PN_SUB_KEY", ""),
		YesPayPNSubSecret: getEnv("YESPAY_PN_SUB_SECRET", ""),
		YesPayPNUUID:      getEnv("YESPAY_PN_UUID", ""),
		YesPayPNChannel:   getEnv("YESPAY_PN_CHANNEL", ""),
		YesPayPNCipherKey: getEnv("YESPAY_PN_CIPHER_KEY", ""),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Tickets
		TicketSigningKey: getEnv("TICKET_SIGNING_KEY", "dev-ticket-signing-key"),

		// Check-in window
		EarlyEntryWindow:   getEnvAsDuration("EARLY_ENTRY_WINDOW", "2h"),
		CheckinGracePeriod: getEnvAsDuration("CHECKIN_GRACE_PERIOD", "4h"),

		// Timeouts
		PaymentTimeout:    getEnvAsDuration("PAYMENT_TIMEOUT", "10m"),
		ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", "30s"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
