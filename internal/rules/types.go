// Package rules implements the Rule Engine: priority-ordered truth-table
// evaluation of a normalized reconciliation context against a cached set
// of TruthRule rows.
package rules

// Scope restricts a rule to the import pipeline, the interactive edit
// pipeline, or both.
type Scope string

const (
	ScopeImport Scope = "Import"
	ScopeEdit   Scope = "Edit"
	ScopeBoth   Scope = "Both"
)

// ApplyTo controls whether an outcome applies to just the candidate row or
// both sides of a reconciliation pair. The engine copies it through
// unchanged; it carries no evaluation semantics of its own.
type ApplyTo string

const (
	ApplyToSelf ApplyTo = "Self"
	ApplyToBoth ApplyTo = "Both"
)

// MTStatus is the categorical acknowledgement state a rule can require.
type MTStatus string

const (
	MTStatusWildcard MTStatus = ""
	MTStatusAcked    MTStatus = "Acked"
	MTStatusNotAcked MTStatus = "NotAcked"
	MTStatusNull     MTStatus = "Null"
)

// AccountSide is the pivot-side predicate: P maps to IsPivot=true, R to
// IsPivot=false.
type AccountSide string

const (
	AccountSideWildcard AccountSide = ""
	AccountSidePivot    AccountSide = "P"
	AccountSideReceiv   AccountSide = "R"
)

// NumRange is an inclusive numeric range predicate; a nil Min or Max means
// that bound is unset.
type NumRange struct {
	Min *float64
	Max *float64
}

func (r NumRange) empty() bool { return r.Min == nil && r.Max == nil }

func (r NumRange) matches(v float64, has bool) bool {
	if r.empty() {
		return true
	}
	if !has {
		return false
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// TriState is a nullable boolean predicate: nil means wildcard.
type TriState struct {
	Set   bool
	Value bool
}

func Tri(v bool) TriState { return TriState{Set: true, Value: v} }

func (t TriState) matches(ctx *TriState) bool {
	if !t.Set {
		return true
	}
	if ctx == nil || !ctx.Set {
		return false
	}
	return ctx.Value == t.Value
}

// TruthRule is one row of the reconciliation rule table.
type TruthRule struct {
	ID       int64
	Priority int
	Enabled  bool
	Scope    Scope
	ApplyTo  ApplyTo
	AutoApply bool
	Message  string

	Booking         string
	GuaranteeType   string
	TransactionType string
	Sign            string // D, C, or wildcard
	AccountSide     AccountSide
	MTStatus        MTStatus

	HasDwingsLink      TriState
	IsGrouped          TriState
	IsAmountMatch      TriState
	IsMatched          TriState
	HasManualMatch     TriState
	IsFirstRequest     TriState
	TriggerDateIsNull  TriState
	CommIdEmail        TriState
	BgiStatusInitiated TriState

	DaysSinceTrigger   NumRange
	OperationDaysAgo   NumRange
	DaysSinceReminder  NumRange
	MissingAmount      NumRange

	CurrentActionID int64
	HasCurrentAction bool

	ActionID          int64
	KpiID             int64
	IncidentTypeID    int64
	RiskyItem         bool
	ReasonNonRiskyID  int64
	ToRemind          bool
	ToRemindDays      int
	FirstClaimToday   bool
}

// Outcome is the output bundle copied unchanged from the matching rule.
type Outcome struct {
	RuleID            int64
	ActionID          int64
	KpiID             int64
	IncidentTypeID    int64
	RiskyItem         bool
	ReasonNonRiskyID  int64
	ToRemind          bool
	ToRemindDays      int
	FirstClaimToday   bool
	Message           string
	RequiresUserConfirm bool
}

// RuleContext is the normalized projection of one candidate row rules are
// evaluated against.
type RuleContext struct {
	Booking         string
	GuaranteeType   string
	TransactionType string
	Sign            string
	IsPivot         bool
	HasIsPivot      bool
	IsMtAcked       *bool // nil == missing

	HasDwingsLink      *bool
	IsGrouped          *bool
	IsAmountMatch      *bool
	IsMatched          *bool
	HasManualMatch     *bool
	IsFirstRequest     *bool
	TriggerDateIsNull  *bool
	CommIdEmail        *bool
	BgiStatusInitiated *bool

	DaysSinceTrigger  *float64
	OperationDaysAgo  *float64
	DaysSinceReminder *float64
	MissingAmount     *float64

	CurrentActionID *int64
}

func triStateOf(p *bool) *TriState {
	if p == nil {
		return nil
	}
	t := Tri(*p)
	return &t
}
