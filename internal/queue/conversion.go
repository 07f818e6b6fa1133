package queue

import (
	"fmt"

	"outreach-platform/internal/outcomes"
)

// ConversionInput is everything the conversion predicate may look at.
// The disposition path supplies Rule and Hint; the reconciliation path
// supplies State. Both may be present.
type ConversionInput struct {
	Outcome    outcomes.Type
	Rule       *outcomes.ScoringRule
	Hint       *outcomes.ConversionHint
	FinalScore int
	FromQueue  Type
	ToQueue    Type
	State      *UserState
}

type Verdict struct {
	Convert bool
	Type    ConversionType
	Reason  string
}

type pattern struct{ from, to Type }

// LeakPatterns are the transition shapes that must be paired with a conversion
// row when the user's state warrants one.
var LeakPatterns = []pattern{
	{from: TypeUnsignedUsers, to: TypeNone},
	{from: TypeOutstandingRequests, to: TypeNone},
}

func IsLeakPattern(from, to Type) bool {
	for _, p := range LeakPatterns {
		if p.from == from && p.to == to {
			return true
		}
	}
	return false
}

// EvaluateConversion is the single conversion predicate shared by the
// disposition pipeline and the reconciliation monitor.
func EvaluateConversion(in ConversionInput) Verdict {
	if in.Rule != nil && in.Rule.TriggersConversion {
		v := Verdict{Convert: true, Type: ConversionMaxScoreReached}
		if in.Hint != nil {
			if t := ConversionType(in.Hint.Type); t.Valid() {
				v.Type = t
			}
			v.Reason = in.Hint.Reason
		}
		if v.Reason == "" {
			v.Reason = fmt.Sprintf("outcome %s ends outreach", in.Outcome)
		}
		return v
	}

	if in.State == nil {
		return Verdict{}
	}
	st := in.State
	switch {
	case st.OptedOut:
		return Verdict{Convert: true, Type: ConversionOptedOut, Reason: "user opted out"}
	case !st.Eligible:
		return Verdict{Convert: true, Type: ConversionNoLongerEligible, Reason: "user is no longer eligible"}
	}
	if !IsLeakPattern(in.FromQueue, in.ToQueue) {
		return Verdict{}
	}
	switch in.FromQueue {
	case TypeUnsignedUsers:
		if st.HasSignature {
			return Verdict{Convert: true, Type: ConversionSigned, Reason: "signature on file"}
		}
	case TypeOutstandingRequests:
		if st.PendingRequirements == 0 {
			return Verdict{Convert: true, Type: ConversionRequirementsCompleted, Reason: "all requirements completed"}
		}
	}
	return Verdict{}
}
