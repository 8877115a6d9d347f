// Package policy decides whether a tool call may run, must be confirmed by
// the user, or is denied. The gate is pure: it inspects the call and returns
// a verdict with a reason; prompting and auditing happen at the call site.
package policy

import (
	"fmt"
	"path"
	"strings"

	"github.com/haasonsaas/sidekick/internal/workspace"
	"github.com/haasonsaas/sidekick/pkg/models"
)

// RiskLevel grades how dangerous a tool call is.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = [...]string{"safe", "low", "medium", "high", "critical"}

func (r RiskLevel) String() string {
	if r < RiskSafe || r > RiskCritical {
		return "unknown"
	}
	return riskNames[r]
}

// ParseRiskLevel maps a config string to a RiskLevel. Unknown values map to
// critical so a typo tightens rather than loosens the policy.
func ParseRiskLevel(s string) RiskLevel {
	for i, name := range riskNames {
		if strings.EqualFold(s, name) {
			return RiskLevel(i)
		}
	}
	return RiskCritical
}

// Decision is the gate's answer for a tool call.
type Decision string

const (
	DecisionAllow   Decision = "allow"
	DecisionConfirm Decision = "confirm"
	DecisionDeny    Decision = "deny"
)

// ConfirmKind routes a confirmation prompt to the right question.
type ConfirmKind string

const (
	ConfirmWrite ConfirmKind = "write"
	ConfirmExec  ConfirmKind = "exec"
)

// Verdict is the outcome of a policy check, always carrying a reason so the
// decision can be audited.
type Verdict struct {
	Decision Decision
	Risk     RiskLevel
	Code     models.ErrorCode
	Reason   string
	Confirm  ConfirmKind
}

// Policy holds the rules the gate enforces. It mirrors the policy section of
// the configuration.
type Policy struct {
	AllowNetwork     bool
	ConfirmWrite     bool
	ConfirmExec      bool
	AllowedTools     []string
	DisallowedTools  []string
	CommandDenylist  []string
	CommandAllowlist []string

	// PathRules are ordered "allow:<glob>" / "deny:<glob>" entries matched
	// against the workspace-relative path of write targets. First match wins;
	// no match allows.
	PathRules []string

	// MaxRiskLevel auto-denies calls graded strictly above it.
	MaxRiskLevel RiskLevel
}

// ToolTraits carry the policy-relevant facts a tool declares about itself.
// The executor derives them from the tool's registry spec; the gate never
// keys decisions on tool names.
type ToolTraits struct {
	NeedsNetwork     bool
	WritesFiles      bool
	ExecutesCommands bool
}

// Gate applies a Policy to tool calls.
type Gate struct {
	policy   Policy
	resolver *workspace.Resolver
}

// NewGate creates a gate. The resolver anchors path rule evaluation.
func NewGate(policy Policy, resolver *workspace.Resolver) *Gate {
	return &Gate{policy: policy, resolver: resolver}
}

// Check returns the verdict for a tool call.
func (g *Gate) Check(call models.ToolCall, traits ToolTraits) Verdict {
	for _, name := range g.policy.DisallowedTools {
		if name == call.Tool {
			return Verdict{
				Decision: DecisionDeny,
				Risk:     RiskSafe,
				Code:     models.CodeToolBlocked,
				Reason:   fmt.Sprintf("tool %q is disallowed by policy", call.Tool),
			}
		}
	}
	if len(g.policy.AllowedTools) > 0 {
		found := false
		for _, name := range g.policy.AllowedTools {
			if name == call.Tool {
				found = true
				break
			}
		}
		if !found {
			return Verdict{
				Decision: DecisionDeny,
				Risk:     RiskSafe,
				Code:     models.CodeToolBlocked,
				Reason:   fmt.Sprintf("tool %q is not in the allowed set", call.Tool),
			}
		}
	}

	if traits.ExecutesCommands {
		return g.checkCommand(call)
	}
	if traits.NeedsNetwork && !g.policy.AllowNetwork {
		return Verdict{
			Decision: DecisionDeny,
			Risk:     RiskMedium,
			Code:     models.CodePolicyDenied,
			Reason:   fmt.Sprintf("tool %q needs network access while allow_network=false", call.Tool),
		}
	}
	if traits.WritesFiles {
		return g.checkWrite(call)
	}
	if traits.NeedsNetwork {
		return Verdict{Decision: DecisionAllow, Risk: RiskLow, Reason: "network tool allowed by policy"}
	}

	return Verdict{Decision: DecisionAllow, Risk: RiskSafe, Reason: "read-only tool"}
}

func (g *Gate) checkCommand(call models.ToolCall) Verdict {
	command, _ := call.Args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return Verdict{
			Decision: DecisionDeny,
			Risk:     RiskSafe,
			Code:     models.CodeInvalidArgs,
			Reason:   "empty command",
		}
	}
	segments := LexCommand(command)

	for _, pattern := range g.policy.CommandDenylist {
		if commandMatches(command, segments, pattern) {
			return Verdict{
				Decision: DecisionDeny,
				Risk:     RiskHigh,
				Code:     models.CodePolicyDenied,
				Reason:   fmt.Sprintf("command matches denylist pattern %q", pattern),
			}
		}
	}
	if len(g.policy.CommandAllowlist) > 0 {
		for _, seg := range segments {
			allowed := false
			for _, pattern := range g.policy.CommandAllowlist {
				if matchWord(seg.Executable, pattern) {
					allowed = true
					break
				}
			}
			if !allowed {
				return Verdict{
					Decision: DecisionDeny,
					Risk:     RiskHigh,
					Code:     models.CodePolicyDenied,
					Reason:   fmt.Sprintf("executable %q is not in the command allowlist", seg.Executable),
				}
			}
		}
	}

	if esc := DetectEscalation(segments); esc != nil {
		if esc.Risk >= RiskCritical || esc.Risk > g.policy.MaxRiskLevel {
			return Verdict{
				Decision: DecisionDeny,
				Risk:     esc.Risk,
				Code:     models.CodePolicyDenied,
				Reason:   esc.Reason,
			}
		}
		return Verdict{
			Decision: DecisionConfirm,
			Risk:     esc.Risk,
			Reason:   esc.Reason,
			Confirm:  ConfirmExec,
		}
	}

	if network, what := UsesNetwork(segments); network && !g.policy.AllowNetwork {
		return Verdict{
			Decision: DecisionDeny,
			Risk:     RiskMedium,
			Code:     models.CodePolicyDenied,
			Reason:   fmt.Sprintf("network access via %q while allow_network=false", what),
		}
	}

	risk := RiskHigh
	if risk > g.policy.MaxRiskLevel {
		return Verdict{
			Decision: DecisionDeny,
			Risk:     risk,
			Code:     models.CodePolicyDenied,
			Reason:   fmt.Sprintf("command risk %s exceeds threshold %s", risk, g.policy.MaxRiskLevel),
		}
	}
	if g.policy.ConfirmExec {
		return Verdict{
			Decision: DecisionConfirm,
			Risk:     risk,
			Reason:   "shell execution requires confirmation",
			Confirm:  ConfirmExec,
		}
	}
	return Verdict{Decision: DecisionAllow, Risk: risk, Reason: "command passed policy checks"}
}

func (g *Gate) checkWrite(call models.ToolCall) Verdict {
	target, _ := call.Args["path"].(string)
	// undo_patch carries no path argument; the journal already confines its
	// targets to the workspace.
	if target != "" {
		abs, err := g.resolver.Resolve(target)
		if err != nil {
			return Verdict{
				Decision: DecisionDeny,
				Risk:     RiskMedium,
				Code:     models.CodePathEscape,
				Reason:   fmt.Sprintf("path %q resolves outside the workspace", target),
			}
		}
		rel := g.resolver.Rel(abs)
		if reason, denied := g.pathDenied(rel); denied {
			return Verdict{
				Decision: DecisionDeny,
				Risk:     RiskMedium,
				Code:     models.CodePolicyDenied,
				Reason:   reason,
			}
		}
	}

	risk := RiskMedium
	if risk > g.policy.MaxRiskLevel {
		return Verdict{
			Decision: DecisionDeny,
			Risk:     risk,
			Code:     models.CodePolicyDenied,
			Reason:   fmt.Sprintf("write risk %s exceeds threshold %s", risk, g.policy.MaxRiskLevel),
		}
	}
	if g.policy.ConfirmWrite {
		return Verdict{
			Decision: DecisionConfirm,
			Risk:     risk,
			Reason:   "file write requires confirmation",
			Confirm:  ConfirmWrite,
		}
	}
	return Verdict{Decision: DecisionAllow, Risk: risk, Reason: "write passed policy checks"}
}

// pathDenied evaluates the ordered path rules against a workspace-relative
// path. First matching rule wins.
func (g *Gate) pathDenied(rel string) (string, bool) {
	for _, rule := range g.policy.PathRules {
		action, glob, ok := strings.Cut(rule, ":")
		if !ok {
			continue
		}
		matched, err := path.Match(glob, rel)
		if err != nil || !matched {
			// Also try matching the basename so rules like "deny:*.env"
			// cover nested files.
			if base := path.Base(rel); err == nil {
				if m2, _ := path.Match(glob, base); m2 {
					matched = true
				}
			}
			if !matched {
				continue
			}
		}
		switch strings.ToLower(action) {
		case "deny":
			return fmt.Sprintf("path %q denied by rule %q", rel, rule), true
		case "allow":
			return "", false
		}
	}
	return "", false
}

// commandMatches reports whether a denylist pattern hits the command: as a
// substring of the raw command or as a glob against any executable.
func commandMatches(command string, segments []Segment, pattern string) bool {
	if strings.Contains(command, pattern) {
		return true
	}
	for _, seg := range segments {
		if matchWord(seg.Executable, pattern) {
			return true
		}
	}
	return false
}

func matchWord(word, pattern string) bool {
	if word == pattern || baseName(word) == pattern {
		return true
	}
	if matched, err := path.Match(pattern, word); err == nil && matched {
		return true
	}
	matched, err := path.Match(pattern, baseName(word))
	return err == nil && matched
}
