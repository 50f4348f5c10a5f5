package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/bcnelson/checkmk-host-manager/internal/checkmk"
	"github.com/bcnelson/checkmk-host-manager/internal/domain"
)

var endpoints = checkmk.NewEndpoints("https://cmk.example.com/prod/check_mk", "prod")

type result struct {
	out string
	err error
}

// fakeRunner answers commands from a script; unknown commands fail.
type fakeRunner struct {
	script map[string]result
	ran    []string
	closed bool
}

func (f *fakeRunner) Run(ctx context.Context, cmd string) (string, error) {
	f.ran = append(f.ran, cmd)
	if r, ok := f.script[cmd]; ok {
		return r.out, r.err
	}
	if strings.HasPrefix(cmd, "wget ") || strings.HasPrefix(cmd, "brew ") || strings.HasPrefix(cmd, "powershell.exe ") {
		return "installed", nil
	}
	return "", errors.New("command not found")
}

func (f *fakeRunner) Close() error {
	f.closed = true
	return nil
}

func newTestInstaller(runner *fakeRunner, gotAddr *string, gotCfg **ssh.ClientConfig) *Installer {
	return NewInstaller(endpoints, Options{
		Dial: func(ctx context.Context, addr string, cfg *ssh.ClientConfig) (Runner, error) {
			*gotAddr = addr
			*gotCfg = cfg
			return runner, nil
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestInstallDebian(t *testing.T) {
	runner := &fakeRunner{script: map[string]result{
		"uname -s":            {out: "Linux\n"},
		"cat /etc/os-release": {out: "NAME=\"Ubuntu\"\nVERSION_ID=\"22.04\"\nID=ubuntu\nID_LIKE=debian\n"},
	}}
	var addr string
	var cfg *ssh.ClientConfig
	inst := newTestInstaller(runner, &addr, &cfg)

	resp, err := inst.Install(context.Background(), &domain.InstallAgentRequest{
		Address: "10.0.0.5", Username: "root", Password: "pw",
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:22", addr)
	assert.Equal(t, "root", cfg.User)
	assert.Equal(t, "linux", resp.OS)
	assert.Equal(t, "installed", resp.Output)
	assert.Contains(t, resp.Command, "https://cmk.example.com/prod/check_mk/agents/check-mk-agent_2.3.0p4-1_all.deb")
	assert.Contains(t, resp.Command, "dpkg -i")
	assert.True(t, runner.closed)
}

func TestInstallCustomPort(t *testing.T) {
	runner := &fakeRunner{script: map[string]result{"uname -s": {out: "Darwin"}}}
	var addr string
	var cfg *ssh.ClientConfig
	inst := newTestInstaller(runner, &addr, &cfg)

	resp, err := inst.Install(context.Background(), &domain.InstallAgentRequest{
		Address: "mac01", Port: 2222, Username: "admin", Password: "pw",
	})
	require.NoError(t, err)
	assert.Equal(t, "mac01:2222", addr)
	assert.Equal(t, "brew install check-mk-agent", resp.Command)
}

func TestInstallUnsupportedDistribution(t *testing.T) {
	runner := &fakeRunner{script: map[string]result{
		"uname -s":            {out: "Linux"},
		"cat /etc/os-release": {out: "ID=alpine\n"},
	}}
	var addr string
	var cfg *ssh.ClientConfig
	inst := newTestInstaller(runner, &addr, &cfg)

	_, err := inst.Install(context.Background(), &domain.InstallAgentRequest{Address: "h", Username: "u", Password: "p"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Len(t, runner.ran, 2, "nothing is installed")
}

func TestInstallDialFailure(t *testing.T) {
	inst := NewInstaller(endpoints, Options{
		Dial: func(ctx context.Context, addr string, cfg *ssh.ClientConfig) (Runner, error) {
			return nil, errors.New("connection refused")
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := inst.Install(context.Background(), &domain.InstallAgentRequest{Address: "h", Username: "u", Password: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDetectOSFallsBackToVer(t *testing.T) {
	runner := &fakeRunner{script: map[string]result{
		"ver": {out: "\r\nMicrosoft Windows [Version 10.0.19045]\r\n"},
	}}
	osType, err := DetectOS(context.Background(), runner)
	require.NoError(t, err)
	assert.Equal(t, "microsoft windows [version 10.0.19045]", osType)
	assert.Equal(t, []string{"uname -s", "ver"}, runner.ran)
}

func TestDetectOSFails(t *testing.T) {
	_, err := DetectOS(context.Background(), &fakeRunner{})
	assert.Error(t, err)
}

func TestParseOSReleaseID(t *testing.T) {
	assert.Equal(t, "rhel", ParseOSReleaseID("NAME=\"Red Hat\"\nID=\"rhel\"\nID_LIKE=\"fedora\"\n"))
	assert.Equal(t, "debian", ParseOSReleaseID("ID=debian"))
	assert.Equal(t, "", ParseOSReleaseID("NAME=unknown"))
}

func TestInstallCommand(t *testing.T) {
	tests := []struct {
		name     string
		osType   string
		distro   string
		contains string
		wantErr  bool
	}{
		{"debian", "linux", "debian", "dpkg -i /tmp/check-mk-agent.deb", false},
		{"rocky", "linux", "rocky", "agents/check-mk-agent-2.3.0p4-1.noarch.rpm", false},
		{"oracle", "linux", "ol", "yum install -y", false},
		{"macos", "darwin", "", "brew install", false},
		{"windows", "microsoft windows [version 10.0]", "", "agents/windows/check_mk_agent.msi", false},
		{"unknown linux", "linux", "arch", "", true},
		{"freebsd", "freebsd", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := InstallCommand(endpoints, tt.osType, tt.distro)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, cmd, tt.contains)
		})
	}
}
