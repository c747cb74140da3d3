package rules

import "sort"

// Evaluate returns the outcome of the first matching rule in ruleSet for
// the given scope, in ascending Priority order, or false if no rule
// matches. ctx should already be normalized via Normalize.
func Evaluate(ctx RuleContext, ruleSet []TruthRule, scope Scope) (Outcome, bool) {
	ordered := make([]TruthRule, len(ruleSet))
	copy(ordered, ruleSet)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	for _, rule := range ordered {
		if !rule.Enabled {
			continue
		}
		if rule.Scope != ScopeBoth && rule.Scope != scope {
			continue
		}
		if !matches(ctx, rule) {
			continue
		}
		return Outcome{
			RuleID:              rule.ID,
			ActionID:            rule.ActionID,
			KpiID:               rule.KpiID,
			IncidentTypeID:      rule.IncidentTypeID,
			RiskyItem:           rule.RiskyItem,
			ReasonNonRiskyID:    rule.ReasonNonRiskyID,
			ToRemind:            rule.ToRemind,
			ToRemindDays:        rule.ToRemindDays,
			FirstClaimToday:     rule.FirstClaimToday,
			Message:             rule.Message,
			RequiresUserConfirm: rule.Message != "",
		}, true
	}
	return Outcome{}, false
}

func matches(ctx RuleContext, rule TruthRule) bool {
	if !matchesSet(rule.Booking, ctx.Booking) {
		return false
	}
	if !matchesSet(rule.GuaranteeType, ctx.GuaranteeType) {
		return false
	}
	if !matchesSet(rule.TransactionType, ctx.TransactionType) {
		return false
	}
	if !isWildcard(rule.Sign) && upperTrim(rule.Sign)[:1] != normalizeSign(ctx.Sign) {
		return false
	}
	if !matchesAccountSide(rule.AccountSide, ctx) {
		return false
	}
	if !matchesMTStatus(rule.MTStatus, ctx.IsMtAcked) {
		return false
	}

	triPairs := []struct {
		rule TriState
		ctx  *bool
	}{
		{rule.HasDwingsLink, ctx.HasDwingsLink},
		{rule.IsGrouped, ctx.IsGrouped},
		{rule.IsAmountMatch, ctx.IsAmountMatch},
		{rule.IsMatched, ctx.IsMatched},
		{rule.HasManualMatch, ctx.HasManualMatch},
		{rule.IsFirstRequest, ctx.IsFirstRequest},
		{rule.TriggerDateIsNull, ctx.TriggerDateIsNull},
		{rule.CommIdEmail, ctx.CommIdEmail},
		{rule.BgiStatusInitiated, ctx.BgiStatusInitiated},
	}
	for _, p := range triPairs {
		if !p.rule.matches(triStateOf(p.ctx)) {
			return false
		}
	}

	rangePairs := []struct {
		rule NumRange
		val  *float64
	}{
		{rule.DaysSinceTrigger, ctx.DaysSinceTrigger},
		{rule.OperationDaysAgo, ctx.OperationDaysAgo},
		{rule.DaysSinceReminder, ctx.DaysSinceReminder},
		{rule.MissingAmount, ctx.MissingAmount},
	}
	for _, p := range rangePairs {
		has := p.val != nil
		var v float64
		if has {
			v = *p.val
		}
		if !p.rule.matches(v, has) {
			return false
		}
	}

	if rule.HasCurrentAction {
		if ctx.CurrentActionID == nil || *ctx.CurrentActionID != rule.CurrentActionID {
			return false
		}
	}

	return true
}

func matchesAccountSide(side AccountSide, ctx RuleContext) bool {
	switch side {
	case AccountSideWildcard, "":
		return true
	case AccountSidePivot:
		return ctx.HasIsPivot && ctx.IsPivot
	case AccountSideReceiv:
		return ctx.HasIsPivot && !ctx.IsPivot
	default:
		return true
	}
}

func matchesMTStatus(status MTStatus, isAcked *bool) bool {
	switch status {
	case MTStatusWildcard, "":
		return true
	case MTStatusAcked:
		return isAcked != nil && *isAcked
	case MTStatusNotAcked:
		return isAcked != nil && !*isAcked
	case MTStatusNull:
		return isAcked == nil
	default:
		return true
	}
}
