package context

import "errors"

var (
	// ErrNotInContext - the requested key is not present on the context
	ErrNotInContext = errors.New("value not in context")
	// ErrValueWrongType - the value on the context is not of the expected type
	ErrValueWrongType = errors.New("context value of wrong type")
	// ErrLoggerNotFound - there is no logger associated with the context
	ErrLoggerNotFound = errors.New("logger not found in context")
)

// CTXKey - a type for context keys
type CTXKey string

const (
	// EnvironmentCTXKey - the key used for the environment (local, development, staging, production)
	EnvironmentCTXKey CTXKey = "environment"
	// DatastoreCTXKey - the context key for getting the datastore
	DatastoreCTXKey CTXKey = "datastore"
	// ServiceKey - the key used for service context
	ServiceKey CTXKey = "service"

	// VersionCTXKey - context key for version of code
	VersionCTXKey CTXKey = "version"
	// CommitCTXKey - context key for the commit of the code
	CommitCTXKey CTXKey = "commit"
	// BuildTimeCTXKey - context key for the build time of code
	BuildTimeCTXKey CTXKey = "build_time"

	// DebugLoggingCTXKey - context key for debug logging
	DebugLoggingCTXKey CTXKey = "debug_logging"
	// LogLevelCTXKey - context key for application logging level
	LogLevelCTXKey CTXKey = "log_level"
	// LogWriterCTXKey - context key to override the log writer
	LogWriterCTXKey CTXKey = "log_writer"

	// RateLimiterBurstCTXKey - context key for the rate limiter burst setting
	RateLimiterBurstCTXKey CTXKey = "rate_limiter_burst"
	// RateLimitPerMinuteCTXKey - context key for the rate limit per minute
	RateLimitPerMinuteCTXKey CTXKey = "rate_limit_per_min"

	// GatewayServerCTXKey - the context key for the payment gateway server url
	GatewayServerCTXKey CTXKey = "gateway_server"
	// GatewayAccessTokenCTXKey - the context key for the payment gateway access token
	GatewayAccessTokenCTXKey CTXKey = "gateway_access_token"
	// GatewayWebhookSecretCTXKey - the context key for the shared webhook signing secret
	GatewayWebhookSecretCTXKey CTXKey = "gateway_webhook_secret"

	// ServiceStatusCTXKey - context key for the health check service status callback
	ServiceStatusCTXKey CTXKey = "service_status"

	// KafkaBrokersCTXKey - context key for the kafka broker list
	KafkaBrokersCTXKey CTXKey = "kafka_brokers"
	// Kafka509CertCTXKey - context key for the kafka x509 client certificate
	Kafka509CertCTXKey CTXKey = "kafka_x509_cert"
)
