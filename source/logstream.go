package source

import (
	"context"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	pojie "github.com/Pojie/pojie-go"
)

// LogSourceName tags events produced by LogStream.
const LogSourceName = "logstream"

var associateRe = regexp.MustCompile(`SSID\s*=?\s*'(.*?)'`)

// LogParser follows one supplicant log and remembers the attempt in flight.
// It is not safe for concurrent use.
type LogParser struct {
	target         string
	attemptStart   time.Time
	handshakeStart time.Time
	handshakes     int

	now func() time.Time
}

// NewLogParser returns a parser with no attempt in flight.
func NewLogParser() *LogParser {
	return &LogParser{now: time.Now}
}

// Target returns the network the log currently talks about.
func (p *LogParser) Target() string { return p.target }

// Parse consumes one log line and returns the event it signals, if any.
func (p *LogParser) Parse(line string) (pojie.Event, bool) {
	now := p.now()
	switch {
	case strings.Contains(line, "Trying to associate with"):
		m := associateRe.FindStringSubmatch(line)
		if m == nil {
			return pojie.Event{}, false
		}
		p.target = DecodeSSID(m[1])
		p.reset(now)
		return pojie.Event{}, false

	case strings.Contains(line, "enableNetwork"):
		p.reset(now)
		return pojie.Event{}, false

	case strings.Contains(line, "RX message 1 of 4-Way Handshake"):
		if p.handshakeStart.IsZero() {
			p.handshakeStart = now
		}
		return pojie.Event{}, false

	case strings.Contains(line, "Sending EAPOL-Key 2/4"):
		p.handshakes++
		ev := p.event(pojie.EventHandshakeProgress, now)
		if !p.handshakeStart.IsZero() {
			ev.HandshakeElapsed = now.Sub(p.handshakeStart)
		}
		ev.RepeatCount = p.handshakes
		return ev, true

	case strings.Contains(line, "Key negotiation completed"),
		strings.Contains(line, "CTRL-EVENT-CONNECTED"):
		return p.event(pojie.EventConnected, now), true

	case strings.Contains(line, "4-Way Handshake failed"):
		return p.event(pojie.EventCredentialRejected, now), true

	case strings.Contains(line, "CTRL-EVENT-SSID-TEMP-DISABLED"):
		if reason, _ := field(line, "reason"); reason != "WRONG_KEY" {
			return pojie.Event{}, false
		}
		ev := p.event(pojie.EventCredentialRejected, now)
		if ssid, ok := quotedField(line, "ssid="); ok {
			ev.Target = DecodeSSID(ssid)
		}
		return ev, true

	case strings.Contains(line, "CTRL-EVENT-ASSOC-REJECT"):
		return p.event(pojie.EventAssociationRejected, now), true
	}
	return pojie.Event{}, false
}

func (p *LogParser) reset(now time.Time) {
	p.attemptStart = now
	p.handshakeStart = time.Time{}
	p.handshakes = 0
}

func (p *LogParser) event(kind pojie.EventKind, now time.Time) pojie.Event {
	return pojie.Event{
		Kind:         kind,
		Target:       p.target,
		Time:         now,
		AttemptStart: p.attemptStart,
		Source:       LogSourceName,
	}
}

// LogStream is a Source fed with supplicant log lines.
type LogStream struct {
	hub *pojie.EventHub
	log pojie.Logger

	mu     sync.Mutex
	parser *LogParser
}

// NewLogStream creates a log stream adapter.
func NewLogStream(lg pojie.Logger) *LogStream {
	return &LogStream{hub: pojie.NewEventHub(), log: orNoop(lg), parser: NewLogParser()}
}

// Subscribe implements pojie.Source.
func (s *LogStream) Subscribe(ctx context.Context) <-chan pojie.Event {
	return s.hub.Subscribe(ctx)
}

// Feed parses one line and publishes the resulting event.
func (s *LogStream) Feed(line string) {
	s.mu.Lock()
	ev, ok := s.parser.Parse(line)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.log.Debugf("log event: kind=%s target=%s", ev.Kind, ev.Target)
	s.hub.Publish(ev)
}

// Run feeds every line of r until EOF or ctx is done.
func (s *LogStream) Run(ctx context.Context, r io.Reader) error {
	return scanLines(ctx, r, s.Feed)
}

// RunCommand spawns a log follower such as
// "logcat -s wpa_supplicant:D" or "journalctl -fu wpa_supplicant" and feeds
// its output until it exits or ctx is done.
func (s *LogStream) RunCommand(ctx context.Context, name string, args ...string) error {
	s.log.Infof("following supplicant log: cmd=%s %s", name, strings.Join(args, " "))
	return runCommand(ctx, s.Feed, name, args...)
}

// Dropped reports events lost to slow subscribers.
func (s *LogStream) Dropped() int64 { return s.hub.Dropped() }

// Close ends every subscription.
func (s *LogStream) Close() { s.hub.Close() }
