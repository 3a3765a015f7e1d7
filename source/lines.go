// Package source adapts wpa_supplicant output into engine events.
//
// Two adapters are provided: LogStream parses the textual supplicant log and
// ConnState turns connectivity-state notifications into events. Both fan out
// through a bounded hub, so every engine attempt gets an independent
// subscription.
package source

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os/exec"
	"strings"

	pojie "github.com/Pojie/pojie-go"
)

const maxLine = 1 << 20

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

func orNoop(lg pojie.Logger) pojie.Logger {
	if lg == nil {
		return noopLogger{}
	}
	return lg
}

// scanLines calls fn for every line of r. ctx is checked between lines; a
// blocked read is only interrupted by closing r.
func scanLines(ctx context.Context, r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

// runCommand streams the stdout of a command line by line until it exits or
// ctx is done, which kills it.
func runCommand(ctx context.Context, fn func(string), name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	scanErr := scanLines(ctx, out, fn)
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if scanErr != nil {
		return scanErr
	}
	if waitErr != nil {
		return fmt.Errorf("%s exited: %w", name, waitErr)
	}
	return nil
}

// DecodeSSID expands the \xNN escapes wpa_supplicant uses for non-printable
// SSID bytes. Malformed input is returned unchanged.
func DecodeSSID(s string) string {
	if !strings.Contains(s, `\x`) {
		return s
	}
	var b []byte
	for i := 0; i < len(s); {
		if s[i] == '\\' && i+3 < len(s) && s[i+1] == 'x' {
			v, err := hex.DecodeString(s[i+2 : i+4])
			if err != nil {
				return s
			}
			b = append(b, v...)
			i += 4
			continue
		}
		b = append(b, s[i])
		i++
	}
	return string(b)
}

// quotedField returns the double quoted value following key, e.g. ssid="x".
func quotedField(line, key string) (string, bool) {
	i := strings.Index(line, key+`"`)
	if i < 0 {
		return "", false
	}
	rest := line[i+len(key)+1:]
	j := strings.LastIndex(rest, `"`)
	if k := strings.Index(rest, `" `); k >= 0 {
		j = k
	}
	if j < 0 {
		return "", false
	}
	return rest[:j], true
}

// field returns the unquoted value of a key=value token.
func field(line, key string) (string, bool) {
	for _, tok := range strings.Fields(line) {
		if v, ok := strings.CutPrefix(tok, key+"="); ok {
			return v, true
		}
	}
	return "", false
}
