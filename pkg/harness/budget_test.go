package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/irrev-systems/irrev/pkg/budget"
	"github.com/irrev-systems/irrev/pkg/risk"
)

func TestRiskLevelFor(t *testing.T) {
	cases := []struct {
		class risk.Class
		want  budget.RiskLevel
	}{
		{risk.ReadOnly, budget.RiskLow},
		{risk.AppendOnly, budget.RiskLow},
		{risk.MutationReversible, budget.RiskMedium},
		{risk.ExternalSideEffect, budget.RiskHigh},
		{risk.MutationDestructive, budget.RiskCritical},
	}
	for _, c := range cases {
		require.Equal(t, c.want, riskLevelFor(c.class), "class %s", c.class)
	}
}

func TestBlastRadius_NoEffectsStillCountsOne(t *testing.T) {
	require.Equal(t, 1, blastRadius(EffectSummary{}))
}

func TestBlastRadius_CountsEachTrueFlag(t *testing.T) {
	require.Equal(t, 2, blastRadius(EffectSummary{Writes: true, Network: true}))
}

func TestCheckRiskBudget_NilBudgetIsNoOp(t *testing.T) {
	h := &Harness{}
	err := h.checkRiskBudget("agent:lint", risk.MutationDestructive, EffectSummary{Destructive: true})
	require.NoError(t, err)
}

func TestCheckRiskBudget_DeniesWhenRiskScoreExceeded(t *testing.T) {
	enforcer := budget.NewRiskEnforcer()
	enforcer.SetBudget(&budget.RiskBudget{
		TenantID:       "agent:destroy",
		RiskScoreCap:   5,
		BlastRadiusCap: 10,
	})
	h := &Harness{Budget: enforcer}

	err := h.checkRiskBudget("agent:destroy", risk.MutationDestructive, EffectSummary{Destructive: true})
	require.Error(t, err)
	require.Contains(t, err.Error(), "RISK_BUDGET_EXCEEDED")
}

func TestCheckRiskBudget_DeniesWithoutConfiguredTenantBudget(t *testing.T) {
	enforcer := budget.NewRiskEnforcer()
	h := &Harness{Budget: enforcer}

	err := h.checkRiskBudget("agent:unknown", risk.ReadOnly, EffectSummary{})
	require.Error(t, err)
}

func TestCheckRiskBudget_AllowsWithinBudget(t *testing.T) {
	enforcer := budget.NewRiskEnforcer()
	enforcer.SetBudget(&budget.RiskBudget{
		TenantID:       "agent:lint",
		RiskScoreCap:   100,
		BlastRadiusCap: 100,
	})
	h := &Harness{Budget: enforcer}

	err := h.checkRiskBudget("agent:lint", risk.ReadOnly, EffectSummary{})
	require.NoError(t, err)
}

func TestAutonomousAllowed_NilBudgetIsPermissive(t *testing.T) {
	h := &Harness{}
	require.True(t, h.autonomousAllowed("agent:lint", risk.MutationDestructive))
}

func TestAutonomousAllowed_RespectsAutonomyThreshold(t *testing.T) {
	enforcer := budget.NewRiskEnforcer()
	enforcer.SetBudget(&budget.RiskBudget{TenantID: "agent:low-autonomy", AutonomyLevel: 5})
	h := &Harness{Budget: enforcer}

	require.False(t, h.autonomousAllowed("agent:low-autonomy", risk.ReadOnly))

	enforcer.SetBudget(&budget.RiskBudget{TenantID: "agent:high-autonomy", AutonomyLevel: 80})
	require.True(t, h.autonomousAllowed("agent:high-autonomy", risk.ReadOnly))
	require.True(t, h.autonomousAllowed("agent:high-autonomy", risk.ExternalSideEffect))
	require.False(t, h.autonomousAllowed("agent:high-autonomy", risk.MutationDestructive))
}

func TestRun_DeniesWhenRiskBudgetExceeded(t *testing.T) {
	h := newHarness(t)
	enforcer := budget.NewRiskEnforcer()
	enforcer.SetBudget(&budget.RiskBudget{
		TenantID:       "lint-delegate",
		RiskScoreCap:   0,
		BlastRadiusCap: 0,
	})
	h.Budget = enforcer
	ctx := context.Background()

	handler := fakeHandler{
		meta: HandlerMetadata{Name: "lint_vault", Operation: "lint", Surface: "cli", DelegateTo: "lint-delegate"},
		plan: fakePlan{summary: "lint the vault"},
	}

	_, err := h.Run(ctx, handler, map[string]any{"scope": "all"}, "agent", "cli", "executor")
	require.Error(t, err)
	require.Contains(t, err.Error(), "RISK_BUDGET_EXCEEDED")
}
