package enforcer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDiff(t *testing.T) {
	oldBatch := []Setting{
		{DstAddr: "10.0.0.1", ClassID: "1:2", Dscp: "AF41"},
		{DstAddr: "10.0.0.2", ClassID: "1:3", Dscp: "AF31"},
	}
	newBatch := []Setting{
		{DstAddr: "10.0.0.2", ClassID: "1:3", Dscp: "AF31"},
		{DstAddr: "10.0.0.3", ClassID: "1:2", Dscp: "AF41"},
	}
	toDel, toAdd := ComputeDiff(oldBatch, newBatch)
	assert.Equal(t, []Setting{{DstAddr: "10.0.0.1", ClassID: "1:2", Dscp: "AF41"}}, toDel)
	assert.Equal(t, []Setting{{DstAddr: "10.0.0.3", ClassID: "1:2", Dscp: "AF41"}}, toAdd)
}

func TestComputeDiffIdentical(t *testing.T) {
	batch := []Setting{{DstAddr: "10.0.0.1", ClassID: "1:2", Dscp: "AF41"}}
	toDel, toAdd := ComputeDiff(batch, append([]Setting{}, batch...))
	assert.Empty(t, toDel)
	assert.Empty(t, toAdd)
}

func TestRuleLines(t *testing.T) {
	var b strings.Builder
	AddRuleLinesToAdd(nil, "eth0", []Setting{
		{DstAddr: "10.0.0.1", ClassID: "1:2", Dscp: "AF41"},
	}, &b)
	lines := b.String()
	assert.Contains(t, lines, "-A OUTPUT -o eth0 -p tcp -m tcp -d 10.0.0.1 -j CLASSIFY --set-class 1:2\n")
	assert.Contains(t, lines, "-A OUTPUT -o eth0 -p tcp -m tcp -d 10.0.0.1 -j DSCP --set-dscp-class AF41\n")
	assert.Contains(t, lines, "-A OUTPUT -o eth0 -p tcp -m tcp -d 10.0.0.1 -j RETURN\n")

	b.Reset()
	AddRuleLinesToAdd(nil, "eth0", []Setting{
		{SrcPort: 1234, DstPort: 80, DstAddr: "10.0.0.1", ClassID: "1:2", Dscp: "AF31"},
	}, &b)
	lines = b.String()
	// Port-specific rules are inserted, not appended.
	assert.Contains(t, lines, "-I OUTPUT -o eth0 -p tcp -m tcp -d 10.0.0.1 --sport 1234 --dport 80 -j DSCP --set-dscp-class AF31\n")

	b.Reset()
	AddRuleLinesToDelete("eth0", []Setting{
		{DstAddr: "10.0.0.1", ClassID: "1:2", Dscp: "AF41"},
	}, &b)
	assert.Contains(t, b.String(), "-D OUTPUT -o eth0 -p tcp -m tcp -d 10.0.0.1 -j RETURN\n")
}

func TestRuleLinesIgnoreClassID(t *testing.T) {
	var b strings.Builder
	AddRuleLinesToAdd(map[string]bool{"AF41": true}, "eth0", []Setting{
		{DstAddr: "10.0.0.1", ClassID: "1:2", Dscp: "AF41"},
	}, &b)
	assert.NotContains(t, b.String(), "CLASSIFY")
	assert.Contains(t, b.String(), "DSCP")
}

func TestSettingsFindDscp(t *testing.T) {
	// Sorted by (src port, dst port, dst addr).
	settings := []Setting{
		{SrcPort: 0, DstPort: 0, DstAddr: "10.0.0.1", ClassID: "1:2", Dscp: "AF31"},
		{SrcPort: 0, DstPort: 80, DstAddr: "10.0.0.2", ClassID: "1:3", Dscp: "AF41"},
		{SrcPort: 99, DstPort: 80, DstAddr: "10.0.0.2", ClassID: "1:4", Dscp: "AF31"},
	}

	assert.Equal(t, "AF31", SettingsFindDscp(settings, 99, 80, "10.0.0.2", "AF41"))
	assert.Equal(t, "AF41", SettingsFindDscp(settings, 50, 80, "10.0.0.2", "AF31"))
	assert.Equal(t, "AF31", SettingsFindDscp(settings, 1, 2, "10.0.0.1", "AF41"))
	assert.Equal(t, "AF41", SettingsFindDscp(settings, 1, 2, "172.16.0.9", "AF41"))
}

type fakeRunner struct {
	restores []string
	failNext bool
}

func (f *fakeRunner) EnsureChain(table, chain string) (bool, error) { return true, nil }
func (f *fakeRunner) EnsureRule(table, chain string, ruleSpec ...string) (bool, error) {
	return true, nil
}
func (f *fakeRunner) Restore(table string, payload []byte, flush bool) error {
	if f.failNext {
		f.failNext = false
		return assert.AnError
	}
	f.restores = append(f.restores, string(payload))
	return nil
}

func TestIptablesControllerCommitsDiffs(t *testing.T) {
	runner := &fakeRunner{}
	c := NewIptablesController("eth1", nil, runner)

	c.Stage(Setting{DstAddr: "10.0.0.1", ClassID: "1:2", Dscp: "AF41"})
	require.NoError(t, c.CommitChanges())
	require.Len(t, runner.restores, 1)
	assert.Contains(t, runner.restores[0], "-A OUTPUT -o eth1")
	assert.NotContains(t, runner.restores[0], "-D OUTPUT")

	// Same setting again: nothing to change.
	c.Stage(Setting{DstAddr: "10.0.0.1", ClassID: "1:2", Dscp: "AF41"})
	require.NoError(t, c.CommitChanges())
	assert.Equal(t, "*mangle\nCOMMIT\n", runner.restores[1])

	// Replacement: old rules deleted, new added.
	c.Stage(Setting{DstAddr: "10.0.0.1", ClassID: "1:2", Dscp: "AF31"})
	require.NoError(t, c.CommitChanges())
	assert.Contains(t, runner.restores[2], "-D OUTPUT -o eth1 -p tcp -m tcp -d 10.0.0.1 -j DSCP --set-dscp-class AF41\n")
	assert.Contains(t, runner.restores[2], "-A OUTPUT -o eth1 -p tcp -m tcp -d 10.0.0.1 -j DSCP --set-dscp-class AF31\n")

	assert.Equal(t, "AF31", c.DscpFor(0, 0, "10.0.0.1", "AF41"))
}

func TestIptablesControllerFailedCommitRollsBack(t *testing.T) {
	runner := &fakeRunner{}
	c := NewIptablesController("eth1", nil, runner)

	c.Stage(Setting{DstAddr: "10.0.0.1", ClassID: "1:2", Dscp: "AF41"})
	runner.failNext = true
	require.Error(t, c.CommitChanges())

	// The next empty commit must delete the possibly-applied rules.
	require.NoError(t, c.CommitChanges())
	assert.Contains(t, runner.restores[len(runner.restores)-1], "-D OUTPUT -o eth1")
}
