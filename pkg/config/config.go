package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv     string
	LogLevel   string
	Port       string
	AppBaseURL string

	// AWS
	AWSRegion        string
	DynamoDBTable    string
	DynamoDBEndpoint string
	InvoiceBucket    string
	AgreementBucket  string
	SiteMapBucket    string
	SESFromEmail     string
	SESFromName      string

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceIDs      map[string]string
	Currency            string
	PrepaidRentCents    int64
	SecurityBondCents   int64
	PrepaidWeeks        int
	CheckoutSuccessURL  string
	CheckoutCancelURL   string

	// Timeouts and reconciliation
	ExternalCallTimeout time.Duration
	WebhookDeadline     time.Duration
	EventLease          time.Duration
	EventRetention      time.Duration
	RetryMaxAttempts    int
	BreakerFailures     uint32
	BreakerOpenTimeout  time.Duration

	// Auth / documents
	JWTSecret    string
	SignedURLTTL time.Duration
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:     getEnv("APP_ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		Port:       getEnv("PORT", "8080"),
		AppBaseURL: strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),

		AWSRegion:        getEnv("AWS_REGION", "ap-southeast-2"),
		DynamoDBTable:    getEnv("DYNAMODB_TABLE", "storage-management"),
		DynamoDBEndpoint: getEnv("DYNAMODB_ENDPOINT", ""),
		InvoiceBucket:    getEnv("INVOICE_BUCKET", "storehere-invoices"),
		AgreementBucket:  getEnv("AGREEMENT_BUCKET", "storehere-agreements"),
		SiteMapBucket:    getEnv("SITE_MAP_BUCKET", "storehere-site-maps"),
		SESFromEmail:     getEnv("SES_FROM_EMAIL", ""),
		SESFromName:      getEnv("SES_FROM_NAME", "StoreHere"),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceIDs: map[string]string{
			"weekly":      getEnv("STRIPE_PRICE_WEEKLY", ""),
			"fortnightly": getEnv("STRIPE_PRICE_FORTNIGHTLY", ""),
			"monthly":     getEnv("STRIPE_PRICE_MONTHLY", ""),
		},
		Currency:           strings.ToLower(getEnv("CURRENCY", "aud")),
		PrepaidRentCents:   getInt64Env("PREPAID_RENT_CENTS", 34000),
		SecurityBondCents:  getInt64Env("SECURITY_BOND_CENTS", 30000),
		PrepaidWeeks:       getIntEnv("PREPAID_WEEKS", 4),
		CheckoutSuccessURL: getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/payment?success=true"),
		CheckoutCancelURL:  getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/payment?canceled=true"),

		ExternalCallTimeout: getDurationEnv("EXTERNAL_CALL_TIMEOUT", 10*time.Second),
		WebhookDeadline:     getDurationEnv("WEBHOOK_DEADLINE", 25*time.Second),
		EventLease:          getDurationEnv("EVENT_LEASE", 2*time.Minute),
		EventRetention:      getDurationEnv("EVENT_RETENTION", 30*24*time.Hour),
		RetryMaxAttempts:    getIntEnv("RETRY_MAX_ATTEMPTS", 3),
		BreakerFailures:     uint32(getIntEnv("BREAKER_FAILURES", 5)),
		BreakerOpenTimeout:  getDurationEnv("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		SignedURLTTL: getDurationEnv("SIGNED_URL_TTL", 15*time.Minute),
	}

	return cfg, nil
}

// Validate reports every mandatory setting that is missing.
func (c *Config) Validate() error {
	var errs []error
	required := map[string]string{
		"DYNAMODB_TABLE":    c.DynamoDBTable,
		"INVOICE_BUCKET":    c.InvoiceBucket,
		"SES_FROM_EMAIL":    c.SESFromEmail,
		"STRIPE_SECRET_KEY": c.StripeSecretKey,
	}
	for key, value := range required {
		if value == "" {
			errs = append(errs, errors.New("config: "+key+" is required"))
		}
	}
	if c.PrepaidWeeks <= 0 {
		errs = append(errs, errors.New("config: PREPAID_WEEKS must be positive"))
	}
	if c.IsProduction() && c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("config: STRIPE_WEBHOOK_SECRET is required in production"))
	}
	return errors.Join(errs...)
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// PriceFor returns the configured recurring price for a billing frequency.
func (c *Config) PriceFor(frequency string) string {
	return c.StripePriceIDs[strings.ToLower(frequency)]
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
