package enforcer

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	goiptables "github.com/coreos/go-iptables/iptables"
	"github.com/sirupsen/logrus"
)

var iptlog = logrus.WithField("component", "enforcer.IptablesRunner")

const iptablesRestoreTimeout = 10 * time.Second

// IptablesRunner is the slice of iptables functionality the enforcer
// needs: idempotent chain/rule management plus bulk restore.
type IptablesRunner interface {
	// EnsureChain creates the chain if needed and reports whether it
	// already existed.
	EnsureChain(table, chain string) (existed bool, err error)
	// EnsureRule appends the rule if needed and reports whether it
	// already existed.
	EnsureRule(table, chain string, ruleSpec ...string) (existed bool, err error)
	// Restore feeds payload to iptables-restore for one table. With
	// flush set the table's previous contents are dropped.
	Restore(table string, payload []byte, flush bool) error
}

type execIptablesRunner struct {
	ipt        *goiptables.IPTables
	restoreBin string
}

func NewIptablesRunner() (IptablesRunner, error) {
	ipt, err := goiptables.NewWithProtocol(goiptables.ProtocolIPv4)
	if err != nil {
		return nil, fmt.Errorf("initializing iptables: %w", err)
	}
	return &execIptablesRunner{ipt: ipt, restoreBin: "iptables-restore"}, nil
}

func (r *execIptablesRunner) EnsureChain(table, chain string) (bool, error) {
	existed, err := r.ipt.ChainExists(table, chain)
	if err != nil {
		return false, fmt.Errorf("checking chain %s/%s: %w", table, chain, err)
	}
	if existed {
		return true, nil
	}
	if err := r.ipt.NewChain(table, chain); err != nil {
		return false, fmt.Errorf("creating chain %s/%s: %w", table, chain, err)
	}
	return false, nil
}

func (r *execIptablesRunner) EnsureRule(table, chain string, ruleSpec ...string) (bool, error) {
	existed, err := r.ipt.Exists(table, chain, ruleSpec...)
	if err != nil {
		return false, fmt.Errorf("checking rule in %s/%s: %w", table, chain, err)
	}
	if existed {
		return true, nil
	}
	if err := r.ipt.Append(table, chain, ruleSpec...); err != nil {
		return false, fmt.Errorf("appending rule to %s/%s: %w", table, chain, err)
	}
	return false, nil
}

func (r *execIptablesRunner) Restore(table string, payload []byte, flush bool) error {
	args := []string{"-T", table}
	if !flush {
		args = append(args, "--noflush")
	}
	ctx, cancel := context.WithTimeout(context.Background(), iptablesRestoreTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, r.restoreBin, args...)
	cmd.Stdin = bytes.NewReader(payload)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %v: %w (output: %s)", r.restoreBin, args, err, bytes.TrimSpace(out))
	}
	iptlog.WithField("table", table).Debug("iptables-restore succeeded")
	return nil
}
