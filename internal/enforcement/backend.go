package enforcement

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Backend performs the actual block. Implementations must honor ctx.
type Backend interface {
	Name() string
	Block(ctx context.Context, source string) error
}

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CommandBackend blocks a source by running a host firewall command
type CommandBackend struct {
	name    string
	argv    func(source string) []string
	useSudo bool
	run     commandRunner
}

// NewUFWBackend runs `ufw deny from <source>`
func NewUFWBackend(useSudo bool) *CommandBackend {
	return &CommandBackend{
		name: "ufw",
		argv: func(source string) []string {
			return []string{"ufw", "deny", "from", source}
		},
		useSudo: useSudo,
		run:     runCommand,
	}
}

// NewIPTablesBackend appends a DROP rule for the source to chain
func NewIPTablesBackend(chain string, useSudo bool) *CommandBackend {
	if chain == "" {
		chain = "INPUT"
	}
	return &CommandBackend{
		name: "iptables",
		argv: func(source string) []string {
			return []string{"iptables", "-A", chain, "-s", source, "-j", "DROP"}
		},
		useSudo: useSudo,
		run:     runCommand,
	}
}

func (b *CommandBackend) Name() string {
	return b.name
}

func (b *CommandBackend) Block(ctx context.Context, source string) error {
	// Sources are free-form tokens; only addresses reach the firewall command.
	if _, err := netip.ParseAddr(source); err != nil {
		if _, perr := netip.ParsePrefix(source); perr != nil {
			return fmt.Errorf("refusing to block %q: not an IP address", source)
		}
	}

	argv := b.argv(source)
	if b.useSudo {
		argv = append([]string{"sudo", "-n"}, argv...)
	}

	out, err := b.run(ctx, argv[0], argv[1:]...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s timeout", b.name)
		}
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s failed: %w: %s", strings.Join(argv, " "), err, msg)
		}
		return fmt.Errorf("%s failed: %w", strings.Join(argv, " "), err)
	}
	return nil
}

// DryRunBackend only logs the block. It never fails.
type DryRunBackend struct {
	logger *logrus.Logger
}

func NewDryRunBackend(logger *logrus.Logger) *DryRunBackend {
	return &DryRunBackend{logger: logger}
}

func (b *DryRunBackend) Name() string {
	return "dry_run"
}

func (b *DryRunBackend) Block(ctx context.Context, source string) error {
	b.logger.Infof("[dry-run] would block %s", source)
	return nil
}

// NewBackend builds a backend by name
func NewBackend(name string, chain string, useSudo bool, logger *logrus.Logger) (Backend, error) {
	switch name {
	case "ufw":
		return NewUFWBackend(useSudo), nil
	case "iptables":
		return NewIPTablesBackend(chain, useSudo), nil
	case "dry_run", "":
		return NewDryRunBackend(logger), nil
	default:
		return nil, fmt.Errorf("unknown enforcement backend: %s", name)
	}
}
