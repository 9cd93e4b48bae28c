package config

import "fmt"

// ConfigurationError reports missing or invalid required configuration.
// The CLI maps it to its own exit code so operators can tell a config
// problem from a runtime failure.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("missing required configuration: %s", e.Field)
	}
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
