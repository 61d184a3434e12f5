package material

import "fmt"

// ConfigError reports a malformed library or slot catalog entry.
// It is fatal at startup; nothing is loaded when one is returned.
type ConfigError struct {
	Entry  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("material config: %s: %s", e.Entry, e.Reason)
}

func configErrorf(entry, format string, args ...any) *ConfigError {
	return &ConfigError{Entry: entry, Reason: fmt.Sprintf(format, args...)}
}
