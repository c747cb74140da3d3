package rules

import "strings"

// rowToRule maps a generic scanned row (column name -> driver value) onto
// a TruthRule. Unrecognized columns are ignored; missing columns leave
// their TruthRule field at its zero value, which for every predicate
// reads as wildcard.
func rowToRule(cols []string, vals []any) TruthRule {
	get := func(name string) any {
		for i, c := range cols {
			if strings.EqualFold(c, name) {
				return vals[i]
			}
		}
		return nil
	}

	var rule TruthRule
	rule.ID = asInt64(get("ID"))
	rule.Priority = int(asInt64(get("Priority")))
	rule.Enabled = asBool(get("Enabled"))
	rule.Scope = Scope(asString(get("Scope")))
	rule.ApplyTo = ApplyTo(asString(get("ApplyTo")))
	rule.AutoApply = asBool(get("AutoApply"))
	rule.Message = asString(get("Message"))

	rule.Booking = asString(get("Booking"))
	rule.GuaranteeType = asString(get("GuaranteeType"))
	rule.TransactionType = asString(get("TransactionType"))
	rule.Sign = asString(get("Sign"))
	rule.AccountSide = AccountSide(asString(get("AccountSide")))
	rule.MTStatus = MTStatus(asString(get("MTStatus")))

	rule.HasDwingsLink = asTriState(get("HasDwingsLink"))
	rule.IsGrouped = asTriState(get("IsGrouped"))
	rule.IsAmountMatch = asTriState(get("IsAmountMatch"))
	rule.IsMatched = asTriState(get("IsMatched"))
	rule.HasManualMatch = asTriState(get("HasManualMatch"))
	rule.IsFirstRequest = asTriState(get("IsFirstRequest"))
	rule.TriggerDateIsNull = asTriState(get("TriggerDateIsNull"))
	rule.CommIdEmail = asTriState(get("CommIdEmail"))
	rule.BgiStatusInitiated = asTriState(get("BgiStatusInitiated"))

	rule.DaysSinceTrigger = asRange(get("DaysSinceTriggerMin"), get("DaysSinceTriggerMax"))
	rule.OperationDaysAgo = asRange(get("OperationDaysAgoMin"), get("OperationDaysAgoMax"))
	rule.DaysSinceReminder = asRange(get("DaysSinceReminderMin"), get("DaysSinceReminderMax"))
	rule.MissingAmount = asRange(get("MissingAmountMin"), get("MissingAmountMax"))

	if v := get("CurrentActionId"); v != nil {
		rule.HasCurrentAction = true
		rule.CurrentActionID = asInt64(v)
	}

	rule.ActionID = asInt64(get("ActionId"))
	rule.KpiID = asInt64(get("KpiId"))
	rule.IncidentTypeID = asInt64(get("IncidentTypeId"))
	rule.RiskyItem = asBool(get("RiskyItem"))
	rule.ReasonNonRiskyID = asInt64(get("ReasonNonRiskyId"))
	rule.ToRemind = asBool(get("ToRemind"))
	rule.ToRemindDays = int(asInt64(get("ToRemindDays")))
	rule.FirstClaimToday = asBool(get("FirstClaimToday"))

	return rule
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	case float64:
		return int64(x)
	default:
		return 0
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return ""
	}
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int64:
		return x != 0
	case int:
		return x != 0
	default:
		return false
	}
}

func asTriState(v any) TriState {
	if v == nil {
		return TriState{}
	}
	return Tri(asBool(v))
}

func asRange(min, max any) NumRange {
	var r NumRange
	if min != nil {
		f := asFloat64(min)
		r.Min = &f
	}
	if max != nil {
		f := asFloat64(max)
		r.Max = &f
	}
	return r
}

func asFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	default:
		return 0
	}
}
