package models

// ConfigError indicates an invalid or incomplete configuration.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return "config error: " + e.Message
}

// ServerConfig holds the HTTP/websocket listener settings.
type ServerConfig struct {
	Port            int `json:"port" validate:"omitempty,min=1,max=65535"`
	ReadTimeoutSec  int `json:"readTimeoutSec" validate:"omitempty,min=1"`
	WriteTimeoutSec int `json:"writeTimeoutSec" validate:"omitempty,min=1"`
	IdleTimeoutSec  int `json:"idleTimeoutSec" validate:"omitempty,min=1"`

	RateLimitRequests  int `json:"rateLimitRequests" validate:"omitempty,min=1"`
	RateLimitWindowSec int `json:"rateLimitWindowSec" validate:"omitempty,min=1"`
}

// DatabaseConfig holds storage engine settings.
type DatabaseConfig struct {
	Path string `json:"path" validate:"required"`
}

// IngressConfig bounds the capture endpoint.
type IngressConfig struct {
	MaxBodyBytes int64 `json:"maxBodyBytes" validate:"omitempty,min=1"`
	DefaultLimit int   `json:"defaultLimit" validate:"omitempty,min=1"`
	MaxLimit     int   `json:"maxLimit" validate:"omitempty,min=1"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"serviceName"`
	ServiceVersion string  `json:"serviceVersion"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlpEndpoint"`
	SampleRate     float64 `json:"sampleRate" validate:"omitempty,min=0,max=1"`
	UseStdout      bool    `json:"useStdout"`
}

// RetryConfig configures exponential backoff used during startup and dialing.
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs" validate:"omitempty,min=1"`
	MaxBackoffMs     int `json:"maxBackoffMs" validate:"omitempty,min=1"`
	MaxAttempts      int `json:"maxAttempts" validate:"omitempty,min=1"`
}

// Config is the root daemon configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database" validate:"required"`
	Ingress  IngressConfig  `json:"ingress"`
	Tracing  TracingConfig  `json:"tracing"`
	Retry    RetryConfig    `json:"retry"`
	LogLevel string         `json:"logLevel" validate:"omitempty,oneof=trace debug info warn error"`
}
