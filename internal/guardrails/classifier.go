// Package guardrails implements the risk classification, pending-action
// confirmation protocol, and action gating for NetWarden. Any
// state-changing action submitted through the engine either executes
// immediately, waits for an explicit time-bounded human confirmation,
// or is blocked outright.
package guardrails

import (
	"regexp"
	"strings"

	"netwarden/internal/models"
)

// Classifier assigns a risk level to a command string. Classification
// is pure: the same input always yields the same output.
type Classifier struct {
	blocked  []string
	patterns []riskPatterns
}

type riskPatterns struct {
	level models.RiskLevel
	res   []*regexp.Regexp
}

// Pattern tiers checked from highest to lowest risk; the first match
// wins. Read-only commands fall through to info.
var defaultPatterns = []riskPatterns{
	{models.RiskCritical, compileAll(
		`(reload|reboot|reset|factory)`,
		`(delete|erase|format)`,
		`(shutdown|disable)\s+(all|system)`,
		`write\s+erase`,
		`crypto\s+key\s+zeroize`,
	)},
	{models.RiskHigh, compileAll(
		`(shutdown|disable)\s+\w+`,
		`(no\s+)?(switchport|vlan|trunk)`,
		`(ip\s+route|route\s+add|route\s+delete)`,
		`(access-list|acl|firewall)`,
		`(spanning-tree|stp)`,
		`snmp|radius|tacacs`,
		`configure|^set\s`,
	)},
	{models.RiskMedium, compileAll(
		`\b(add|remove|modify)\b`,
		`(interface|set)`,
		`(enable|disable)\s+\w+`,
		`(ip\s+address|address)`,
		`description`,
		`mtu`,
	)},
	{models.RiskLow, compileAll(
		`(ping|traceroute|tracert)`,
		`(ssh|telnet)`,
		`debug`,
	)},
}

func compileAll(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return res
}

// NewClassifier builds a classifier with the default pattern tiers and
// the given denylist of substrings that are never executable.
func NewClassifier(blockedCommands []string) *Classifier {
	blocked := make([]string, len(blockedCommands))
	for i, b := range blockedCommands {
		blocked[i] = strings.ToLower(b)
	}
	return &Classifier{
		blocked:  blocked,
		patterns: defaultPatterns,
	}
}

// IsBlocked checks the denylist before any risk classification. A match
// short-circuits to a blocked decision distinct from any risk level.
func (c *Classifier) IsBlocked(command string) (bool, string) {
	lower := strings.ToLower(strings.TrimSpace(command))
	for _, b := range c.blocked {
		if strings.Contains(lower, b) {
			return true, "command matches blocked pattern: " + b
		}
	}
	return false, ""
}

// Classify returns the risk level of a command. Tiers are checked in
// descending severity so a command matching both a critical and a
// medium pattern is classified critical.
func (c *Classifier) Classify(command string) models.RiskLevel {
	lower := strings.ToLower(strings.TrimSpace(command))

	for _, tier := range c.patterns {
		for _, re := range tier.res {
			if re.MatchString(lower) {
				return tier.level
			}
		}
	}

	return models.RiskInfo
}

// IsReadOnly reports whether the command is safe without confirmation
// regardless of the configured threshold.
func (c *Classifier) IsReadOnly(command string) bool {
	risk := c.Classify(command)
	return risk == models.RiskInfo || risk == models.RiskLow
}
