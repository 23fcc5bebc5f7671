package harness

import (
	"fmt"

	"github.com/irrev-systems/irrev/pkg/budget"
	"github.com/irrev-systems/irrev/pkg/ledgererr"
	"github.com/irrev-systems/irrev/pkg/risk"
)

// riskLevelFor maps the ledger's five-valued risk.Class onto budget's
// coarser, multiplier-bearing RiskLevel, so a single RiskEnforcer can weight
// every operation the harness proposes regardless of which delegate_to it is
// billed against. ExternalSideEffect and MutationDestructive both require
// approval under risk.RequiresApproval, but only the latter also requires
// force-ack, so it alone maps to RiskCritical.
func riskLevelFor(c risk.Class) budget.RiskLevel {
	switch c {
	case risk.ReadOnly, risk.AppendOnly:
		return budget.RiskLow
	case risk.MutationReversible:
		return budget.RiskMedium
	case risk.ExternalSideEffect:
		return budget.RiskHigh
	case risk.MutationDestructive:
		return budget.RiskCritical
	default:
		return budget.RiskCritical
	}
}

// blastRadius estimates how many distinct resources a plan's declared
// effects touch, for RiskEnforcer's blast-radius accounting. Each true
// effect flag counts as one affected resource; a plan with no declared
// effects still counts for one, since proposing anything still spends some
// budget against the delegate_to.
func blastRadius(effects EffectSummary) int {
	n := 0
	for _, b := range []bool{effects.Destructive, effects.Writes, effects.Network, effects.AppendOnly} {
		if b {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}

// checkRiskBudget consults h.Budget, when configured, before a plan is
// allowed past Propose. An unconfigured Budget (nil) is a no-op: the risk
// budget is an optional layer on top of the approval gate risk.Compute
// already derives, not a replacement for it.
func (h *Harness) checkRiskBudget(delegateTo string, riskClass risk.Class, effects EffectSummary) error {
	if h.Budget == nil {
		return nil
	}
	level := riskLevelFor(riskClass)
	decision := h.Budget.CheckRisk(delegateTo, level, 1.0, blastRadius(effects))
	if !decision.Allowed {
		return ledgererr.New(ledgererr.CodeRiskBudgetExceeded, ledgererr.ClassificationNonRetryable,
			fmt.Sprintf("delegate_to %q risk budget exceeded: %s", delegateTo, decision.Reason))
	}
	return nil
}

// autonomousAllowed reports whether h.Budget, when configured, permits this
// risk class to proceed without human approval under the delegate_to's
// current autonomy level. Unconfigured is permissive: autonomy shrinking is
// an additional, opt-in restriction layered on top of risk.RequiresApproval,
// which Run and Execute already enforce unconditionally.
func (h *Harness) autonomousAllowed(delegateTo string, riskClass risk.Class) bool {
	if h.Budget == nil {
		return true
	}
	return h.Budget.IsAutonomousAllowed(delegateTo, riskLevelFor(riskClass))
}
