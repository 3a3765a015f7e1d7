package config

import (
	"fmt"
	"slices"
	"strings"

	pojie "github.com/Pojie/pojie-go"
)

// ValidationError is a single invalid field.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is returned by Load when any field is invalid.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the accepted logger levels.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate reports every invalid field.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if err := c.Attempt.Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "attempt", Value: c.Attempt.FailureMode, Message: err.Error()})
	}
	if !slices.Contains(ValidLogLevels(), c.Logger.Level) {
		errs = append(errs, ValidationError{
			Field:   "logger.level",
			Value:   c.Logger.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	if c.Logger.Encoding != "json" && c.Logger.Encoding != "console" {
		errs = append(errs, ValidationError{Field: "logger.encoding", Value: c.Logger.Encoding, Message: "must be json or console"})
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, ValidationError{Field: "redis.addr", Value: c.Redis.Addr, Message: "required when redis is enabled"})
		}
		if c.Redis.Session == "" {
			errs = append(errs, ValidationError{Field: "redis.session", Value: c.Redis.Session, Message: "required when redis is enabled"})
		}
		if c.Redis.TTL < 0 {
			errs = append(errs, ValidationError{Field: "redis.ttl", Value: c.Redis.TTL, Message: "must not be negative"})
		}
	}
	if c.HTTP.Enabled && (c.HTTP.Port <= 0 || c.HTTP.Port > 65535) {
		errs = append(errs, ValidationError{Field: "http.port", Value: c.HTTP.Port, Message: "must be between 1 and 65535"})
	}
	if c.Connector.MinInterval < 0 {
		errs = append(errs, ValidationError{Field: "connector.min_interval", Value: c.Connector.MinInterval, Message: "must not be negative"})
	}
	if c.Sources.WatchdogTimeout < 0 {
		errs = append(errs, ValidationError{Field: "sources.watchdog_timeout", Value: c.Sources.WatchdogTimeout, Message: "must not be negative"})
	}
	return errs
}

// ExecConnector converts the connector section.
func (c *ConnectorConfig) ExecConnector(lg pojie.Logger) pojie.ExecConnectorConfig {
	return pojie.ExecConnectorConfig{
		Connect:    c.Connect,
		Disconnect: c.Disconnect,
		ReportExit: c.ReportExit,
		Logger:     lg,
	}
}
