package enforcer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

var ctlog = logrus.WithField("component", "enforcer.IptablesController")

// Setting is one desired iptables configuration entry: classify the
// matched traffic into an HTB class and mark its DSCP.
type Setting struct {
	SrcPort uint16 // optional, 0 to ignore
	DstPort uint16 // optional, 0 to ignore
	DstAddr string // required
	ClassID string // required
	Dscp    string // required
}

func (s Setting) String() string {
	return fmt.Sprintf("Setting{%d, %d, %s, %s, %s}", s.SrcPort, s.DstPort, s.DstAddr, s.ClassID, s.Dscp)
}

func settingLess(a, b Setting) bool {
	if a.SrcPort != b.SrcPort {
		return a.SrcPort < b.SrcPort
	}
	if a.DstPort != b.DstPort {
		return a.DstPort < b.DstPort
	}
	if a.DstAddr != b.DstAddr {
		return a.DstAddr < b.DstAddr
	}
	if a.ClassID != b.ClassID {
		return a.ClassID < b.ClassID
	}
	return a.Dscp < b.Dscp
}

// ComputeDiff sorts both batches and fills toDel with entries only in
// oldBatch and toAdd with entries only in newBatch.
func ComputeDiff(oldBatch, newBatch []Setting) (toDel, toAdd []Setting) {
	sort.Slice(oldBatch, func(i, j int) bool { return settingLess(oldBatch[i], oldBatch[j]) })
	sort.Slice(newBatch, func(i, j int) bool { return settingLess(newBatch[i], newBatch[j]) })

	i, j := 0, 0
	for i < len(oldBatch) && j < len(newBatch) {
		switch {
		case settingLess(oldBatch[i], newBatch[j]):
			toDel = append(toDel, oldBatch[i])
			i++
		case settingLess(newBatch[j], oldBatch[i]):
			toAdd = append(toAdd, newBatch[j])
			j++
		default:
			i++
			j++
		}
	}
	toDel = append(toDel, oldBatch[i:]...)
	toAdd = append(toAdd, newBatch[j:]...)
	return toDel, toAdd
}

func portMatches(s Setting) (srcMatch, dstMatch string, fineGrained bool) {
	if s.SrcPort != 0 {
		srcMatch = fmt.Sprintf(" --sport %d", s.SrcPort)
		fineGrained = true
	}
	if s.DstPort != 0 {
		dstMatch = fmt.Sprintf(" --dport %d", s.DstPort)
		fineGrained = true
	}
	return srcMatch, dstMatch, fineGrained
}

// AddRuleLinesToDelete appends -D lines undoing the batch's rules.
func AddRuleLinesToDelete(dev string, batch []Setting, b *strings.Builder) {
	for _, s := range batch {
		srcMatch, dstMatch, _ := portMatches(s)
		fmt.Fprintf(b, "-D OUTPUT -o %s -p tcp -m tcp -d %s%s%s -j CLASSIFY --set-class %s\n",
			dev, s.DstAddr, srcMatch, dstMatch, s.ClassID)
		fmt.Fprintf(b, "-D OUTPUT -o %s -p tcp -m tcp -d %s%s%s -j DSCP --set-dscp-class %s\n",
			dev, s.DstAddr, srcMatch, dstMatch, s.Dscp)
		fmt.Fprintf(b, "-D OUTPUT -o %s -p tcp -m tcp -d %s%s%s -j RETURN\n",
			dev, s.DstAddr, srcMatch, dstMatch)
	}
}

// AddRuleLinesToAdd appends rules installing the batch. Port-specific
// rules are inserted at the head so they take precedence over
// flow-group-wide ones; DSCPs listed in dscpsToIgnoreClassID skip the
// CLASSIFY rule.
func AddRuleLinesToAdd(dscpsToIgnoreClassID map[string]bool, dev string, batch []Setting, b *strings.Builder) {
	for _, s := range batch {
		srcMatch, dstMatch, fineGrained := portMatches(s)
		if fineGrained {
			fmt.Fprintf(b, "-I OUTPUT -o %s -p tcp -m tcp -d %s%s%s -j RETURN\n",
				dev, s.DstAddr, srcMatch, dstMatch)
			fmt.Fprintf(b, "-I OUTPUT -o %s -p tcp -m tcp -d %s%s%s -j DSCP --set-dscp-class %s\n",
				dev, s.DstAddr, srcMatch, dstMatch, s.Dscp)
			if !dscpsToIgnoreClassID[s.Dscp] {
				fmt.Fprintf(b, "-I OUTPUT -o %s -p tcp -m tcp -d %s%s%s -j CLASSIFY --set-class %s\n",
					dev, s.DstAddr, srcMatch, dstMatch, s.ClassID)
			}
		} else {
			if !dscpsToIgnoreClassID[s.Dscp] {
				fmt.Fprintf(b, "-A OUTPUT -o %s -p tcp -m tcp -d %s%s%s -j CLASSIFY --set-class %s\n",
					dev, s.DstAddr, srcMatch, dstMatch, s.ClassID)
			}
			fmt.Fprintf(b, "-A OUTPUT -o %s -p tcp -m tcp -d %s%s%s -j DSCP --set-dscp-class %s\n",
				dev, s.DstAddr, srcMatch, dstMatch, s.Dscp)
			fmt.Fprintf(b, "-A OUTPUT -o %s -p tcp -m tcp -d %s%s%s -j RETURN\n",
				dev, s.DstAddr, srcMatch, dstMatch)
		}
	}
}

// SettingsFindDscp returns the DSCP the applied settings give the
// requested flow, trying exact port matches first and then wildcard
// fallbacks. The settings must be sorted.
func SettingsFindDscp(settings []Setting, srcPort, dstPort uint16, dstAddr, defaultDscp string) string {
	find := func(sp, dp uint16) (string, bool) {
		want := Setting{SrcPort: sp, DstPort: dp, DstAddr: dstAddr}
		i := sort.Search(len(settings), func(i int) bool { return !settingLess(settings[i], want) })
		if i < len(settings) && settings[i].SrcPort == sp && settings[i].DstPort == dp && settings[i].DstAddr == dstAddr {
			return settings[i].Dscp, true
		}
		return "", false
	}
	for _, try := range [][2]uint16{{srcPort, dstPort}, {0, dstPort}, {srcPort, 0}, {0, 0}} {
		if dscp, ok := find(try[0], try[1]); ok {
			return dscp
		}
	}
	return defaultDscp
}

// IptablesController stages desired settings and commits them as a
// delete/add diff against the mangle table's OUTPUT chain via a single
// iptables-restore invocation.
type IptablesController struct {
	dev                  string
	dscpsToIgnoreClassID map[string]bool
	runner               IptablesRunner

	staged  []Setting
	applied []Setting
}

func NewIptablesController(dev string, dscpsToIgnoreClassID []string, runner IptablesRunner) *IptablesController {
	ignore := make(map[string]bool, len(dscpsToIgnoreClassID))
	for _, d := range dscpsToIgnoreClassID {
		ignore[d] = true
	}
	return &IptablesController{dev: dev, dscpsToIgnoreClassID: ignore, runner: runner}
}

// Clear flushes the mangle table and forgets all applied settings.
func (c *IptablesController) Clear() error {
	c.applied = nil
	ctlog.Info("flushing iptables mangle table")
	if err := c.runner.Restore("mangle", []byte("*mangle\nCOMMIT\n"), true); err != nil {
		return fmt.Errorf("failed to flush iptables mangle table: %w", err)
	}
	return nil
}

// Stage queues one setting for the next CommitChanges.
func (c *IptablesController) Stage(s Setting) {
	c.staged = append(c.staged, s)
}

// CommitChanges diffs the staged settings against the applied ones and
// installs the difference atomically. On failure the half-applied rules
// are remembered for deletion on the next commit.
func (c *IptablesController) CommitChanges() error {
	toDel, toAdd := ComputeDiff(c.applied, c.staged)

	var b strings.Builder
	b.WriteString("*mangle\n")
	AddRuleLinesToDelete(c.dev, toDel, &b)
	AddRuleLinesToAdd(c.dscpsToIgnoreClassID, c.dev, toAdd, &b)
	b.WriteString("COMMIT\n")

	ctlog.WithFields(logrus.Fields{"del": len(toDel), "add": len(toAdd)}).
		Debug("updating rules for iptables mangle table")

	if err := c.runner.Restore("mangle", []byte(b.String()), false); err != nil {
		// We are between the old and new states; make sure the next
		// commit rolls everything back.
		c.applied = append(c.applied[:0], toAdd...)
		c.applied = append(c.applied, toDel...)
		sort.Slice(c.applied, func(i, j int) bool { return settingLess(c.applied[i], c.applied[j]) })
		c.staged = nil
		return fmt.Errorf("failed to update iptables mangle table: %w", err)
	}

	c.applied = append(c.applied[:0], c.staged...)
	sort.Slice(c.applied, func(i, j int) bool { return settingLess(c.applied[i], c.applied[j]) })
	c.staged = nil
	return nil
}

// DscpFor resolves the DSCP the applied configuration gives a flow.
func (c *IptablesController) DscpFor(srcPort, dstPort uint16, dstAddr, defaultDscp string) string {
	return SettingsFindDscp(c.applied, srcPort, dstPort, dstAddr, defaultDscp)
}

// AppliedSettings returns the currently applied settings, sorted.
func (c *IptablesController) AppliedSettings() []Setting {
	return c.applied
}
