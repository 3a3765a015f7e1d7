package attempt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseFailureMode(t *testing.T) {
	for _, s := range []string{"wrong_credential", "handshake_timeout", "handshake_retry_exceeded"} {
		m, err := ParseFailureMode(s)
		require.NoError(t, err)
		require.Equal(t, s, string(m))
	}
	_, err := ParseFailureMode("sometimes")
	require.ErrorIs(t, err, ErrUnknownFailureMode)
}

func TestParseOutcome(t *testing.T) {
	for _, o := range AllOutcomes {
		got, err := ParseOutcome(string(o))
		require.NoError(t, err)
		require.Equal(t, o, got)
	}
	_, err := ParseOutcome("maybe")
	require.ErrorIs(t, err, ErrUnknownOutcome)
}

func TestConfig_WithDefaults(t *testing.T) {
	c := Config{RetryLimit: 3}.WithDefaults()
	require.Equal(t, 5*time.Second, c.MaxAttemptDuration)
	require.Equal(t, HandshakeTimeout, c.FailureMode)
	require.Equal(t, 2*time.Second, c.HandshakeTimeout)
	require.Equal(t, 500*time.Millisecond, c.IdlePoll)
	require.Equal(t, 3, c.RetryLimit)
	require.NoError(t, c.Validate())
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(*Config){
		"mode":      func(c *Config) { c.FailureMode = "x" },
		"duration":  func(c *Config) { c.MaxAttemptDuration = 0 },
		"handshake": func(c *Config) { c.HandshakeTimeout = 0 },
		"retries":   func(c *Config) { c.MaxHandshakeRetries = -1 },
		"limit":     func(c *Config) { c.RetryLimit = -1 },
		"backoff":   func(c *Config) { c.BackoffBase = -time.Second },
		"poll":      func(c *Config) { c.IdlePoll = -time.Second },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}

	c := DefaultConfig()
	c.FailureMode = WrongCredential
	c.HandshakeTimeout = 0
	require.NoError(t, c.Validate(), "handshake timeout only matters in handshake_timeout mode")
}

func TestDelegationError(t *testing.T) {
	cause := errors.New("radio off")
	var err error = &DelegationError{Op: "begin", Target: "home", Err: cause}
	require.ErrorIs(t, err, cause)
	var de *DelegationError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "begin", de.Op)
	require.Contains(t, err.Error(), "target=home")
}
