package enforcement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	name string
	args []string
}

type fakeRunner struct {
	calls  []recordedCall
	out    []byte
	err    error
	before func(ctx context.Context)
}

func (f *fakeRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, recordedCall{name: name, args: args})
	if f.before != nil {
		f.before(ctx)
	}
	return f.out, f.err
}

func TestCommandBackendArgs(t *testing.T) {
	tests := []struct {
		name     string
		backend  *CommandBackend
		source   string
		wantName string
		wantArgs []string
	}{
		{
			name:     "ufw",
			backend:  NewUFWBackend(false),
			source:   "10.0.0.1",
			wantName: "ufw",
			wantArgs: []string{"deny", "from", "10.0.0.1"},
		},
		{
			name:     "ufw with sudo",
			backend:  NewUFWBackend(true),
			source:   "10.0.0.1",
			wantName: "sudo",
			wantArgs: []string{"-n", "ufw", "deny", "from", "10.0.0.1"},
		},
		{
			name:     "iptables default chain",
			backend:  NewIPTablesBackend("", false),
			source:   "2001:db8::1",
			wantName: "iptables",
			wantArgs: []string{"-A", "INPUT", "-s", "2001:db8::1", "-j", "DROP"},
		},
		{
			name:     "iptables custom chain with prefix",
			backend:  NewIPTablesBackend("CONN_GUARD", false),
			source:   "192.168.0.0/24",
			wantName: "iptables",
			wantArgs: []string{"-A", "CONN_GUARD", "-s", "192.168.0.0/24", "-j", "DROP"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runner := &fakeRunner{}
			tc.backend.run = runner.run

			require.NoError(t, tc.backend.Block(context.Background(), tc.source))
			require.Len(t, runner.calls, 1)
			assert.Equal(t, tc.wantName, runner.calls[0].name)
			assert.Equal(t, tc.wantArgs, runner.calls[0].args)
		})
	}
}

func TestCommandBackendRejectsNonAddresses(t *testing.T) {
	runner := &fakeRunner{}
	backend := NewUFWBackend(false)
	backend.run = runner.run

	for _, source := range []string{"-h", "not-an-ip", "", "10.0.0.1; rm -rf /"} {
		err := backend.Block(context.Background(), source)
		assert.Error(t, err, source)
	}
	assert.Empty(t, runner.calls)
}

func TestCommandBackendFailure(t *testing.T) {
	runner := &fakeRunner{out: []byte("ERROR: You need to be root\n"), err: errors.New("exit status 1")}
	backend := NewUFWBackend(false)
	backend.run = runner.run

	err := backend.Block(context.Background(), "10.0.0.1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ufw deny from 10.0.0.1 failed")
	assert.Contains(t, err.Error(), "You need to be root")
}

func TestCommandBackendTimeout(t *testing.T) {
	runner := &fakeRunner{
		err: errors.New("signal: killed"),
		before: func(ctx context.Context) {
			<-ctx.Done()
		},
	}
	backend := NewIPTablesBackend("INPUT", false)
	backend.run = runner.run

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := backend.Block(ctx, "10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, "iptables timeout", err.Error())
}

func TestNewBackend(t *testing.T) {
	logger := logrus.New()

	for name, want := range map[string]string{
		"ufw":      "ufw",
		"iptables": "iptables",
		"dry_run":  "dry_run",
		"":         "dry_run",
	} {
		backend, err := NewBackend(name, "INPUT", false, logger)
		require.NoError(t, err, name)
		assert.Equal(t, want, backend.Name())
	}

	_, err := NewBackend("pf", "", false, logger)
	assert.Error(t, err)
}

func TestDryRunBackend(t *testing.T) {
	assert.NoError(t, NewDryRunBackend(logrus.New()).Block(context.Background(), "10.0.0.1"))
}
