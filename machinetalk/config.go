package machinetalk

import "time"

// ClientConfig bundles the settings needed to construct and start all
// three endpoints. machinetalk never loads this from a file or the
// environment itself — that belongs to the calling application — but a
// plain struct like this is what callers build from flags, env vars, or a
// config file.
type ClientConfig struct {
	StatusURI  string
	CommandURI string
	ErrorURI   string

	HeartbeatPeriod    time.Duration
	PingErrorThreshold int

	LogLevel string

	MetricsEnabled     bool
	MetricsDatadogHost string
}

// DefaultClientConfig returns a ClientConfig with the same defaults each
// endpoint constructor falls back to on its own.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HeartbeatPeriod:    defaultHeartbeatPeriod,
		PingErrorThreshold: defaultPingErrorThreshold,
		LogLevel:           "info",
	}
}
