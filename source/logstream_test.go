package source

import (
	"context"
	"strings"
	"testing"
	"time"

	pojie "github.com/Pojie/pojie-go"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestDecodeSSID(t *testing.T) {
	require.Equal(t, "plain", DecodeSSID("plain"))
	require.Equal(t, "家", DecodeSSID(`\xe5\xae\xb6`))
	require.Equal(t, "a-家-b", DecodeSSID(`a-\xe5\xae\xb6-b`))
	require.Equal(t, `bad\xZZ`, DecodeSSID(`bad\xZZ`))
	require.Equal(t, `short\x4`, DecodeSSID(`short\x4`))
}

func TestLogParser_HandshakeSequence(t *testing.T) {
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	p := NewLogParser()
	p.now = clk.now

	_, ok := p.Parse("wpa_supplicant: wlan0: Trying to associate with SSID 'home'")
	require.False(t, ok)
	require.Equal(t, "home", p.Target())
	start := clk.t

	clk.advance(100 * time.Millisecond)
	_, ok = p.Parse("wpa_supplicant: WPA: RX message 1 of 4-Way Handshake from 11:22:33:44:55:66 (ver=2)")
	require.False(t, ok)

	clk.advance(300 * time.Millisecond)
	ev, ok := p.Parse("wpa_supplicant: WPA: Sending EAPOL-Key 2/4")
	require.True(t, ok)
	require.Equal(t, pojie.EventHandshakeProgress, ev.Kind)
	require.Equal(t, "home", ev.Target)
	require.Equal(t, start, ev.AttemptStart)
	require.Equal(t, 300*time.Millisecond, ev.HandshakeElapsed)
	require.Equal(t, 1, ev.RepeatCount)
	require.Equal(t, LogSourceName, ev.Source)

	clk.advance(time.Second)
	ev, ok = p.Parse("wpa_supplicant: WPA: Sending EAPOL-Key 2/4")
	require.True(t, ok)
	require.Equal(t, 2, ev.RepeatCount)
	require.Equal(t, 1300*time.Millisecond, ev.HandshakeElapsed)

	ev, ok = p.Parse("wpa_supplicant: WPA: 4-Way Handshake failed - pre-shared key may be incorrect")
	require.True(t, ok)
	require.Equal(t, pojie.EventCredentialRejected, ev.Kind)

	clk.advance(time.Second)
	_, ok = p.Parse("WifiService: enableNetwork uid=1000 disableOthers=true")
	require.False(t, ok)
	ev, ok = p.Parse("wpa_supplicant: WPA: Sending EAPOL-Key 2/4")
	require.True(t, ok)
	require.Equal(t, 1, ev.RepeatCount, "enableNetwork restarts the attempt")
	require.Zero(t, ev.HandshakeElapsed)
	require.Equal(t, clk.t, ev.AttemptStart)
}

func TestLogParser_Outcomes(t *testing.T) {
	cases := []struct {
		line string
		kind pojie.EventKind
	}{
		{"wpa_supplicant: WPA: Key negotiation completed with 11:22:33:44:55:66 [PTK=CCMP GTK=CCMP]", pojie.EventConnected},
		{"<3>CTRL-EVENT-CONNECTED - Connection to 11:22:33:44:55:66 completed [id=0 id_str=]", pojie.EventConnected},
		{"wlan0: CTRL-EVENT-ASSOC-REJECT bssid=11:22:33:44:55:66 status_code=17", pojie.EventAssociationRejected},
		{`wlan0: CTRL-EVENT-SSID-TEMP-DISABLED id=0 ssid="home" auth_failures=1 duration=10 reason=WRONG_KEY`, pojie.EventCredentialRejected},
	}
	for _, tc := range cases {
		p := NewLogParser()
		p.Parse("Trying to associate with 11:22:33:44:55:66 (SSID='home' freq=2412 MHz)")
		ev, ok := p.Parse(tc.line)
		require.True(t, ok, tc.line)
		require.Equal(t, tc.kind, ev.Kind, tc.line)
		require.Equal(t, "home", ev.Target, tc.line)
	}
}

func TestLogParser_IgnoresNoise(t *testing.T) {
	p := NewLogParser()
	for _, line := range []string{
		"",
		"DhcpClient: Received packet",
		`wlan0: CTRL-EVENT-SSID-TEMP-DISABLED id=0 ssid="home" auth_failures=1 duration=10 reason=CONN_FAILED`,
		"Trying to associate with something without a name",
	} {
		_, ok := p.Parse(line)
		require.False(t, ok, line)
	}
	require.Empty(t, p.Target())
}

func TestLogStream_RunPublishesToEverySubscriber(t *testing.T) {
	s := NewLogStream(nil)
	defer s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, b := s.Subscribe(ctx), s.Subscribe(ctx)

	log := strings.Join([]string{
		`wlan0: Trying to associate with SSID 'caf\xc3\xa9'`,
		"WPA: Sending EAPOL-Key 2/4",
		"WPA: Key negotiation completed with 11:22:33:44:55:66",
	}, "\n")
	require.NoError(t, s.Run(context.Background(), strings.NewReader(log)))

	for _, ch := range []<-chan pojie.Event{a, b} {
		ev := <-ch
		require.Equal(t, pojie.EventHandshakeProgress, ev.Kind)
		require.Equal(t, "café", ev.Target)
		ev = <-ch
		require.Equal(t, pojie.EventConnected, ev.Kind)
	}
}

func TestLogStream_RunCommand(t *testing.T) {
	s := NewLogStream(nil)
	defer s.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ch := s.Subscribe(ctx)

	err := s.RunCommand(ctx, "printf", `Trying to associate with SSID 'home'\nCTRL-EVENT-ASSOC-REJECT status_code=1\n`)
	require.NoError(t, err)
	ev := <-ch
	require.Equal(t, pojie.EventAssociationRejected, ev.Kind)
	require.Equal(t, "home", ev.Target)

	require.Error(t, s.RunCommand(ctx, "false"))
}

func TestLogStream_CloseEndsSubscriptions(t *testing.T) {
	s := NewLogStream(nil)
	ch := s.Subscribe(context.Background())
	s.Close()
	_, ok := <-ch
	require.False(t, ok)
}
