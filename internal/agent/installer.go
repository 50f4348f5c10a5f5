// Package agent installs the Checkmk monitoring agent on remote machines
// over SSH.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/bcnelson/checkmk-host-manager/internal/checkmk"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
)

// Agent packages served by the Checkmk site.
const (
	debPackage = "check-mk-agent_2.3.0p4-1_all.deb"
	rpmPackage = "check-mk-agent-2.3.0p4-1.noarch.rpm"
	msiPackage = "windows/check_mk_agent.msi"
)

// Runner executes shell commands on a connected machine.
type Runner interface {
	Run(ctx context.Context, cmd string) (string, error)
	Close() error
}

// Dialer opens a Runner for addr.
type Dialer func(ctx context.Context, addr string, cfg *ssh.ClientConfig) (Runner, error)

// Options configures an Installer.
type Options struct {
	Port    int
	Timeout time.Duration
	// KnownHostsFile verifies host keys. Empty accepts any key.
	KnownHostsFile string
	// Dial replaces the SSH dialer, mainly for tests.
	Dial Dialer
}

// Installer detects the operating system of a machine and installs the
// matching agent package.
type Installer struct {
	endpoints checkmk.Endpoints
	opts      Options
	logger    *slog.Logger
}

// NewInstaller creates an Installer downloading agents from the site behind
// endpoints.
func NewInstaller(endpoints checkmk.Endpoints, opts Options, logger *slog.Logger) *Installer {
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = dialSSH
	}
	return &Installer{
		endpoints: endpoints,
		opts:      opts,
		logger:    logger.With("component", "agent-installer"),
	}
}

// Install connects with password authentication, installs the agent and
// returns the installer output.
func (i *Installer) Install(ctx context.Context, req *domain.InstallAgentRequest) (*domain.InstallAgentResponse, error) {
	cfg, err := i.clientConfig(req)
	if err != nil {
		return nil, err
	}

	port := req.Port
	if port == 0 {
		port = i.opts.Port
	}
	addr := net.JoinHostPort(req.Address, strconv.Itoa(port))

	runner, err := i.opts.Dial(ctx, addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer runner.Close()
	i.logger.Info("connected", "addr", addr, "user", req.Username)

	osType, err := DetectOS(ctx, runner)
	if err != nil {
		return nil, err
	}

	var distro string
	if strings.Contains(osType, "linux") {
		release, err := runner.Run(ctx, "cat /etc/os-release")
		if err != nil {
			return nil, fmt.Errorf("reading /etc/os-release: %w", err)
		}
		distro = ParseOSReleaseID(release)
	}
	i.logger.Info("detected operating system", "addr", addr, "os", osType, "distro", distro)

	cmd, err := InstallCommand(i.endpoints, osType, distro)
	if err != nil {
		return nil, err
	}

	out, err := runner.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("installing agent on %s: %w", addr, err)
	}
	i.logger.Info("agent installed", "addr", addr)

	return &domain.InstallAgentResponse{OS: osType, Command: cmd, Output: out}, nil
}

func (i *Installer) clientConfig(req *domain.InstallAgentRequest) (*ssh.ClientConfig, error) {
	hostKey := ssh.InsecureIgnoreHostKey()
	if i.opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(i.opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("loading known hosts: %w", err)
		}
		hostKey = cb
	}
	return &ssh.ClientConfig{
		User:            req.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(req.Password)},
		HostKeyCallback: hostKey,
		Timeout:         i.opts.Timeout,
	}, nil
}

// DetectOS returns the lower-cased operating system name. Machines without
// uname are asked with ver, which Windows understands.
func DetectOS(ctx context.Context, r Runner) (string, error) {
	out, err := r.Run(ctx, "uname -s")
	if err == nil && strings.TrimSpace(out) != "" {
		return strings.ToLower(strings.TrimSpace(out)), nil
	}

	out, verErr := r.Run(ctx, "ver")
	if verErr != nil {
		return "", fmt.Errorf("detecting operating system: %w", errors.Join(err, verErr))
	}
	osType := strings.ToLower(strings.TrimSpace(out))
	if osType == "" {
		return "", fmt.Errorf("%w: could not detect operating system", domain.ErrInvalidInput)
	}
	return osType, nil
}

// ParseOSReleaseID returns the lower-cased ID field of an os-release file.
func ParseOSReleaseID(release string) string {
	for _, line := range strings.Split(release, "\n") {
		v, ok := strings.CutPrefix(strings.TrimSpace(line), "ID=")
		if ok {
			return strings.ToLower(strings.Trim(v, `"'`))
		}
	}
	return ""
}

// InstallCommand returns the shell command installing the agent for the
// given operating system and Linux distribution.
func InstallCommand(e checkmk.Endpoints, osType, distro string) (string, error) {
	switch {
	case strings.Contains(osType, "linux"):
		switch distro {
		case "ubuntu", "debian", "raspbian", "linuxmint":
			return fmt.Sprintf("wget %s -O /tmp/check-mk-agent.deb && dpkg -i /tmp/check-mk-agent.deb",
				e.AgentURL(debPackage)), nil
		case "centos", "rhel", "redhat", "fedora", "ol", "rocky", "almalinux", "amzn":
			return fmt.Sprintf("wget %s -O /tmp/check-mk-agent.rpm && yum install -y /tmp/check-mk-agent.rpm",
				e.AgentURL(rpmPackage)), nil
		}
		return "", fmt.Errorf("%w: unsupported Linux distribution %q", domain.ErrInvalidInput, distro)

	case strings.Contains(osType, "darwin"):
		return "brew install check-mk-agent", nil

	case strings.Contains(osType, "windows"):
		return fmt.Sprintf(`powershell.exe -Command "Invoke-WebRequest -Uri %s -OutFile C:\Windows\Temp\check_mk_agent.msi; `+
			`Start-Process msiexec.exe -ArgumentList '/i', 'C:\Windows\Temp\check_mk_agent.msi', '/quiet', '/norestart' -Wait"`,
			e.AgentURL(msiPackage)), nil
	}
	return "", fmt.Errorf("%w: unsupported operating system %q", domain.ErrInvalidInput, osType)
}

// sshRunner runs each command in its own session of one connection.
type sshRunner struct {
	client *ssh.Client
}

func dialSSH(ctx context.Context, addr string, cfg *ssh.ClientConfig) (Runner, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &sshRunner{client: ssh.NewClient(c, chans, reqs)}, nil
}

func (r *sshRunner) Run(ctx context.Context, cmd string) (string, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("opening session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return stdout.String(), fmt.Errorf("%s: %w: %s", cmd, err, msg)
			}
			return stdout.String(), fmt.Errorf("%s: %w", cmd, err)
		}
		return stdout.String(), nil
	}
}

func (r *sshRunner) Close() error {
	return r.client.Close()
}
