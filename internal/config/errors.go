package config

import "fmt"

// ConfigurationError reports a configuration source that could not be
// read or decoded.
type ConfigurationError struct {
	Source string
	Format Format
	Err    error
}

func (ce *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s configuration from %s: %v", ce.Format, ce.Source, ce.Err)
}

func (ce *ConfigurationError) Unwrap() error {
	return ce.Err
}
