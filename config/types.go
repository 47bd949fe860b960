package config

// Logging controls the structured logger.
type Logging struct {
	Level     string `toml:"Level"`
	File      string `toml:"File"`
	MaxSizeMB int    `toml:"MaxSizeMB"`
}

// Telemetry configures OTLP trace export.
type Telemetry struct {
	Traces   bool   `toml:"Traces"`
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
}

// GenesisAllocation credits lamports to an address when the data directory
// is first created.
type GenesisAllocation struct {
	Address  string `toml:"Address"`
	Lamports uint64 `toml:"Lamports"`
}
