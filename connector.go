package pojie

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"text/template"
)

// ErrEmptyCommand is returned by NewExecConnector without a connect command.
var ErrEmptyCommand = errors.New("pojie: empty connect command")

// ExecConnectorConfig configures an ExecConnector. Every argument is a
// text/template rendered with .Target, .Credential and .AttemptID; no shell is
// involved.
type ExecConnectorConfig struct {
	// Connect starts the attempt, e.g. ["wpa_cli", "-i", "wlan0", "set_network", "0", "psk", "\"{{.Credential}}\""].
	Connect []string `mapstructure:"connect"`
	// Disconnect releases the network after the attempt. Optional.
	Disconnect []string `mapstructure:"disconnect"`
	// ReportExit resolves the attempt from the connect command's exit status:
	// zero is a success, anything else a rejected credential.
	ReportExit bool `mapstructure:"report_exit"`
	Logger     Logger
}

// ExecConnector runs external commands to drive the network.
type ExecConnector struct {
	connect    []*template.Template
	disconnect []*template.Template
	reportExit bool
	log        Logger
}

type commandData struct {
	Target     string
	Credential string
	AttemptID  string
}

type execRef struct {
	cmd    *exec.Cmd
	done   chan struct{}
	output *bytes.Buffer
}

// NewExecConnector parses the command templates.
func NewExecConnector(cfg ExecConnectorConfig) (*ExecConnector, error) {
	if len(cfg.Connect) == 0 {
		return nil, ErrEmptyCommand
	}
	connect, err := parseArgv("connect", cfg.Connect)
	if err != nil {
		return nil, err
	}
	disconnect, err := parseArgv("disconnect", cfg.Disconnect)
	if err != nil {
		return nil, err
	}
	l := cfg.Logger
	if l == nil {
		l = noopLogger{}
	}
	return &ExecConnector{connect: connect, disconnect: disconnect, reportExit: cfg.ReportExit, log: l}, nil
}

func parseArgv(name string, argv []string) ([]*template.Template, error) {
	out := make([]*template.Template, 0, len(argv))
	for i, a := range argv {
		t, err := template.New(fmt.Sprintf("%s[%d]", name, i)).Option("missingkey=error").Parse(a)
		if err != nil {
			return nil, fmt.Errorf("parse %s argument %d: %w", name, i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func renderArgv(tpls []*template.Template, data commandData) ([]string, error) {
	argv := make([]string, 0, len(tpls))
	var b strings.Builder
	for _, t := range tpls {
		b.Reset()
		if err := t.Execute(&b, data); err != nil {
			return nil, err
		}
		argv = append(argv, b.String())
	}
	return argv, nil
}

// Begin starts the connect command and returns without waiting for it.
func (c *ExecConnector) Begin(ctx context.Context, target, credential string) (Handle, error) {
	data := commandData{Target: target, Credential: credential}
	if info, ok := AttemptFrom(ctx); ok {
		data.AttemptID = info.ID
	}
	argv, err := renderArgv(c.connect, data)
	if err != nil {
		return Handle{}, fmt.Errorf("render connect command: %w", err)
	}

	ref := &execRef{done: make(chan struct{}), output: new(bytes.Buffer)}
	ref.cmd = exec.CommandContext(ctx, argv[0], argv[1:]...)
	ref.cmd.Stdout = ref.output
	ref.cmd.Stderr = ref.output
	if err := ref.cmd.Start(); err != nil {
		return Handle{}, fmt.Errorf("start %s: %w", argv[0], err)
	}
	SetTip(ctx, fmt.Sprintf("connecting to %s", target))

	go func() {
		defer close(ref.done)
		err := ref.cmd.Wait()
		if !c.reportExit || ctx.Err() != nil {
			return
		}
		if err == nil {
			ReportOutcome(ctx, OutcomeSuccess, argv[0]+" exited 0")
			return
		}
		c.log.Debugf("connect command failed: target=%s err=%v output=%q", target, err, strings.TrimSpace(ref.output.String()))
		ReportOutcome(ctx, OutcomeCredentialRejected, fmt.Sprintf("%s: %v", argv[0], err))
	}()
	return Handle{Target: target, Credential: credential, ID: data.AttemptID, Ref: ref}, nil
}

// Cancel stops a still running connect command and runs the disconnect
// command, if configured.
func (c *ExecConnector) Cancel(ctx context.Context, h Handle) error {
	if ref, ok := h.Ref.(*execRef); ok {
		select {
		case <-ref.done:
		default:
			if ref.cmd.Process != nil {
				_ = ref.cmd.Process.Kill()
			}
			select {
			case <-ref.done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	if len(c.disconnect) == 0 {
		return nil
	}
	argv, err := renderArgv(c.disconnect, commandData{Target: h.Target, Credential: h.Credential, AttemptID: h.ID})
	if err != nil {
		return fmt.Errorf("render disconnect command: %w", err)
	}
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
