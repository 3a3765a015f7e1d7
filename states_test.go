package pojie

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus_Parse(t *testing.T) {
	for _, s := range []string{"waiting", "running", "cancelled"} {
		st, err := ParseStatus(s)
		require.NoError(t, err)
		require.Equal(t, s, string(st))
	}
	_, err := ParseStatus("finished")
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestOutcomeAndMode_Parse(t *testing.T) {
	o, err := ParseOutcome("timeout")
	require.NoError(t, err)
	require.Equal(t, OutcomeTimeout, o)
	_, err = ParseOutcome("maybe")
	require.ErrorIs(t, err, ErrUnknownOutcome)

	m, err := ParseFailureMode("wrong_credential")
	require.NoError(t, err)
	require.Equal(t, FailureWrongCredential, m)
	_, err = ParseFailureMode("psk")
	require.ErrorIs(t, err, ErrUnknownFailureMode)
}
