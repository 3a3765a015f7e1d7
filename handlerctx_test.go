package pojie

import (
	"context"
	"testing"
	"time"

	"github.com/Pojie/pojie-go/internal/hctx"
	"github.com/stretchr/testify/require"
)

func TestAttemptContext_NoState(t *testing.T) {
	ctx := context.Background()
	_, ok := AttemptFrom(ctx)
	require.False(t, ok)
	SetTip(ctx, "x")
	require.False(t, ReportOutcome(ctx, OutcomeSuccess, "no engine"))
}

func TestAttemptContext_Forwarding(t *testing.T) {
	start := time.Now()
	st := hctx.New("att-1", "home", "pw", start)
	var tip string
	var got Outcome
	st.OnTip = func(s string) { tip = s }
	st.Resolve = func(o Outcome, _ string) bool {
		if got != "" {
			return false
		}
		got = o
		return true
	}
	ctx := hctx.WithState(context.Background(), st)

	info, ok := AttemptFrom(ctx)
	require.True(t, ok)
	require.Equal(t, AttemptInfo{ID: "att-1", Target: "home", Credential: "pw", Start: start}, info)

	SetTip(ctx, "waiting for dhcp")
	require.Equal(t, "waiting for dhcp", tip)
	require.False(t, ReportOutcome(ctx, OutcomeCancelled, "connector cannot cancel"))
	require.Empty(t, got)
	require.True(t, ReportOutcome(ctx, OutcomeSuccess, "ok"))
	require.False(t, ReportOutcome(ctx, OutcomeError, "late"))
	require.Equal(t, OutcomeSuccess, got)
}
