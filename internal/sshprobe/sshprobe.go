// Package sshprobe collects uptime, load, disk and memory readings from
// servers over SSH.
package sshprobe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/serversoft/serversoft/internal/config"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/telemetry"
)

const defaultTimeout = 10 * time.Second

// sectionSeparator splits the output of probeCommand into its parts.
const sectionSeparator = "--serversoft--"

// probeCommand prints one section per reading. Each part is allowed to fail
// independently so a minimal system still reports what it can.
var probeCommand = strings.Join([]string{
	"uptime -p 2>/dev/null || cat /proc/uptime",
	"echo " + sectionSeparator,
	"cat /proc/loadavg 2>/dev/null",
	"echo " + sectionSeparator,
	"df -hP / 2>/dev/null | tail -n 1",
	"echo " + sectionSeparator,
	"free -h 2>/dev/null | grep -i '^mem'",
}, "; ")

// ErrUnsupportedAuth is returned for an SSH auth method the prober cannot use.
var ErrUnsupportedAuth = errors.New("unsupported ssh auth method")

// Target is a decrypted connection description for one server.
type Target struct {
	Host       string
	Port       int
	Username   string
	AuthMethod string
	Secret     string
}

// Prober runs the metrics command on remote servers.
type Prober struct {
	timeout         time.Duration
	hostKeyCallback ssh.HostKeyCallback
}

// New builds a Prober. When cfg.KnownHostsFile is set host keys are checked
// against it; otherwise any host key is accepted.
func New(cfg config.SSHConfig) (*Prober, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		callback = cb
	}
	return &Prober{timeout: timeout, hostKeyCallback: callback}, nil
}

// Probe connects to t and returns its readings. A server that cannot be
// reached yields an offline snapshot together with the error.
func (p *Prober) Probe(ctx context.Context, t Target) (models.ServerMetrics, error) {
	out, err := p.run(ctx, t)
	if err != nil {
		telemetry.SSHProbesTotal.WithLabelValues("error").Inc()
		return models.ServerMetrics{Status: models.ServerStatusOffline}, err
	}
	telemetry.SSHProbesTotal.WithLabelValues("ok").Inc()
	m := ParseOutput(out)
	m.Status = models.ServerStatusOnline
	return m, nil
}

func (p *Prober) clientConfig(t Target) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod
	switch t.AuthMethod {
	case models.SSHAuthPassword:
		methods = append(methods, ssh.Password(t.Secret))
	case models.SSHAuthKey:
		signer, err := ssh.ParsePrivateKey([]byte(t.Secret))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	case models.SSHAuthNone, "":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAuth, t.AuthMethod)
	}
	return &ssh.ClientConfig{
		User:            t.Username,
		Auth:            methods,
		HostKeyCallback: p.hostKeyCallback,
		Timeout:         p.timeout,
	}, nil
}

func (p *Prober) run(ctx context.Context, t Target) (string, error) {
	cfg, err := p.clientConfig(t)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout
	if err := session.Run(probeCommand); err != nil {
		// A non-zero exit from the last pipeline still leaves usable output.
		var exitErr *ssh.ExitError
		if !errors.As(err, &exitErr) || stdout.Len() == 0 {
			return "", fmt.Errorf("run probe command: %w", err)
		}
	}
	return stdout.String(), nil
}

// ParseOutput turns the probe command output into display strings. Missing
// or unparseable sections are left empty.
func ParseOutput(out string) models.ServerMetrics {
	sections := strings.Split(out, sectionSeparator)
	get := func(i int) string {
		if i < len(sections) {
			return strings.TrimSpace(sections[i])
		}
		return ""
	}
	return models.ServerMetrics{
		Uptime:      parseUptime(get(0)),
		LoadAverage: parseLoadAverage(get(1)),
		DiskUsage:   parseDiskUsage(get(2)),
		MemoryUsage: parseMemoryUsage(get(3)),
	}
}

// parseUptime accepts "up 3 days, 4 hours" from uptime -p or the raw
// seconds from /proc/uptime.
func parseUptime(s string) string {
	if s == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(s, "up "); ok {
		return strings.TrimSpace(rest)
	}
	fields := strings.Fields(s)
	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return s
	}
	return formatDuration(time.Duration(secs) * time.Second)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	var parts []string
	add := func(n int, unit string) {
		if n == 0 {
			return
		}
		if n != 1 {
			unit += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, unit))
	}
	add(days, "day")
	add(hours, "hour")
	add(minutes, "minute")
	if len(parts) == 0 {
		return "0 minutes"
	}
	return strings.Join(parts, ", ")
}

// parseLoadAverage keeps the 1, 5 and 15 minute figures of /proc/loadavg.
func parseLoadAverage(s string) string {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return ""
	}
	return strings.Join(fields[:3], " ")
}

// parseDiskUsage reads the Use% column of a POSIX df line.
func parseDiskUsage(s string) string {
	fields := strings.Fields(s)
	if len(fields) < 5 {
		return ""
	}
	return fields[4]
}

// parseMemoryUsage formats "used/total" from the Mem line of free -h.
func parseMemoryUsage(s string) string {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return ""
	}
	return fields[2] + "/" + fields[1]
}
