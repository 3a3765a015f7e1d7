package source

import (
	"context"
	"testing"
	"time"

	pojie "github.com/Pojie/pojie-go"
	"github.com/stretchr/testify/require"
)

func next(t *testing.T, ch <-chan pojie.Event) pojie.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return pojie.Event{}
	}
}

func requireQuiet(t *testing.T, ch <-chan pojie.Event, d time.Duration) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(d):
	}
}

func TestConnState_Classification(t *testing.T) {
	c := NewConnState(0, nil)
	defer c.Close()
	ch := c.Subscribe(context.Background())
	c.SetTarget("home")

	c.Notify(StateChange{State: StateScanning})
	c.Notify(StateChange{State: StateFourWayHandshake})
	ev := next(t, ch)
	require.Equal(t, pojie.EventHandshakeProgress, ev.Kind)
	require.Equal(t, "home", ev.Target)
	require.Equal(t, 1, ev.RepeatCount)
	require.Equal(t, StateSourceName, ev.Source)

	c.Notify(StateChange{AuthFailed: true})
	require.Equal(t, pojie.EventCredentialRejected, next(t, ch).Kind)

	c.Notify(StateChange{Connected: true})
	require.Equal(t, pojie.EventConnected, next(t, ch).Kind)
	requireQuiet(t, ch, 30*time.Millisecond)
}

func TestConnState_TargetFromNotification(t *testing.T) {
	c := NewConnState(0, nil)
	defer c.Close()
	ch := c.Subscribe(context.Background())
	c.SetTarget("home")

	c.Notify(StateChange{Target: "office", State: StateCompleted})
	ev := next(t, ch)
	require.Equal(t, "office", ev.Target)
	require.False(t, ev.AttemptStart.IsZero())
}

func TestConnState_WatchdogFires(t *testing.T) {
	c := NewConnState(50*time.Millisecond, nil)
	defer c.Close()
	ch := c.Subscribe(context.Background())
	c.SetTarget("home")

	c.Notify(StateChange{State: StateFourWayHandshake})
	c.Notify(StateChange{State: StateFourWayHandshake})
	require.Equal(t, pojie.EventHandshakeProgress, next(t, ch).Kind)
	require.Equal(t, 2, next(t, ch).RepeatCount)

	ev := next(t, ch)
	require.Equal(t, pojie.EventHandshakeTimedOut, ev.Kind)
	require.Equal(t, "home", ev.Target)
	requireQuiet(t, ch, 100*time.Millisecond)
}

func TestConnState_WatchdogDisarmed(t *testing.T) {
	c := NewConnState(50*time.Millisecond, nil)
	defer c.Close()
	ch := c.Subscribe(context.Background())

	c.SetTarget("home")
	c.Notify(StateChange{State: StateFourWayHandshake})
	next(t, ch)
	c.Notify(StateChange{Connected: true})
	require.Equal(t, pojie.EventConnected, next(t, ch).Kind)
	requireQuiet(t, ch, 100*time.Millisecond)

	c.Notify(StateChange{State: StateFourWayHandshake})
	next(t, ch)
	c.SetTarget("office")
	requireQuiet(t, ch, 100*time.Millisecond)
}

func TestConnState_Run(t *testing.T) {
	c := NewConnState(0, nil)
	defer c.Close()
	sub := c.Subscribe(context.Background())

	in := make(chan StateChange, 2)
	in <- StateChange{Target: "home", AuthFailed: true}
	in <- StateChange{Target: "home", Connected: true}
	close(in)
	require.NoError(t, c.Run(context.Background(), in))
	require.Equal(t, pojie.EventCredentialRejected, next(t, sub).Kind)
	require.Equal(t, pojie.EventConnected, next(t, sub).Kind)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, c.Run(ctx, make(chan StateChange)), context.Canceled)
}

func TestConnState_NotifyAfterClose(t *testing.T) {
	c := NewConnState(10*time.Millisecond, nil)
	c.Close()
	c.Notify(StateChange{State: StateFourWayHandshake})
	c.Notify(StateChange{Connected: true})
}

func TestConnState_AnnounceSetsTarget(t *testing.T) {
	c := NewConnState(0, nil)
	defer c.Close()
	ch := c.Subscribe(context.Background())

	begin := c.Announce()(func(context.Context, string, string) (pojie.Handle, error) {
		return pojie.Handle{}, nil
	})
	_, err := begin(context.Background(), "lab", "pw")
	require.NoError(t, err)

	c.Notify(StateChange{AuthFailed: true})
	ev := next(t, ch)
	require.Equal(t, "lab", ev.Target)
	require.False(t, ev.AttemptStart.IsZero())
}
