package pojie

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONEncoder_Progress(t *testing.T) {
	enc := &JSONEncoder{}
	in := []Progress{{
		Target:      "home",
		Cursor:      3,
		Total:       10,
		Status:      StatusRunning,
		Tip:         "trying pw",
		LastAttempt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		CreatedAt:   time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC),
	}}
	data, err := enc.Encode(in)
	require.NoError(t, err, "encode should not error")
	require.Contains(t, string(data), `"status":"running"`)

	var out []Progress
	require.NoError(t, enc.Decode(data, &out), "decode should not error")
	assert.Equal(t, in, out)
}

func TestJSONEncoder_DecodeError(t *testing.T) {
	enc := &JSONEncoder{}
	var out []string
	err := enc.Decode([]byte("{"), &out)
	require.Error(t, err, "expected error for invalid JSON")
	require.Contains(t, err.Error(), "decode 1 bytes")
}

func TestJSONEncoder_Indent(t *testing.T) {
	enc := &JSONEncoder{Indent: "  "}
	data, err := enc.Encode(map[string]int{"retry_limit": 2})
	require.NoError(t, err)
	require.Equal(t, "{\n  \"retry_limit\": 2\n}", string(data))
}

func BenchmarkJSONEncoder_DecodeWordlist(b *testing.B) {
	enc := &JSONEncoder{}
	words := make([]string, 1000)
	for i := range words {
		words[i] = "candidate-password"
	}
	data, _ := enc.Encode(words)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var out []string
		_ = enc.Decode(data, &out)
	}
}
