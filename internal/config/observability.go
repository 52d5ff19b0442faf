package config

// OtelConfig holds OpenTelemetry trace exporting configuration.
// Traces are exported over OTLP/HTTP to a local collector or agent.
type OtelConfig struct {
	// Enabled turns trace exporting on. Off by default; the gateway runs
	// fine without a collector.
	Enabled bool `mapstructure:"enabled" json:"enabled"`

	// AgentAddr is the OTLP/HTTP endpoint (host:port, no scheme).
	AgentAddr string `mapstructure:"agent_addr" json:"agent_addr"`

	// ServiceName tags exported spans.
	ServiceName string `mapstructure:"service_name" json:"service_name"`

	// Environment tags exported spans ("dev", "staging", "production").
	Environment string `mapstructure:"environment" json:"environment"`
}
