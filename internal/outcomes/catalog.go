package outcomes

// Conversion types recorded for converting outcomes.
const (
	ConversionSigned           = "signed"
	ConversionOptedOut         = "opted_out"
	ConversionNoLongerEligible = "no_longer_eligible"
)

// definitions is the live priority table. Lower scores are called first, so bad
// outcomes push a user down the list by adding to the score.
var definitions = []Definition{
	{
		Type:           TypeCompletedForm,
		DisplayName:    "Completed form",
		Description:    "User completed and signed during the call.",
		Category:       CategoryPositive,
		Rule:           ScoringRule{ScoreDelta: 0, TriggersConversion: true},
		ConversionType: ConversionSigned,
	},
	{
		Type:        TypeGoingToComplete,
		DisplayName: "Going to complete",
		Description: "User committed to completing shortly.",
		Category:    CategoryPositive,
		Rule:        ScoringRule{ScoreDelta: 2},
	},
	{
		Type:        TypeMightComplete,
		DisplayName: "Might complete",
		Description: "User is undecided.",
		Category:    CategoryNeutral,
		Rule:        ScoringRule{ScoreDelta: 5},
	},
	{
		Type:             TypeCallBack,
		DisplayName:      "Call back requested",
		Description:      "User asked to be called at a specific time.",
		Category:         CategoryNeutral,
		Rule:             ScoringRule{ScoreDelta: 3},
		SupportsCallback: true,
	},
	{
		Type:        TypeNoAnswer,
		DisplayName: "No answer",
		Description: "Call was not picked up.",
		Category:    CategoryNeutral,
		Rule:        ScoringRule{ScoreDelta: 10},
	},
	{
		Type:             TypeMissedCall,
		DisplayName:      "Missed call",
		Description:      "User returned a call that was missed.",
		Category:         CategoryNeutral,
		Rule:             ScoringRule{ScoreDelta: 5},
		SupportsCallback: true,
	},
	{
		Type:        TypeHungUp,
		DisplayName: "Hung up",
		Description: "User ended the call early.",
		Category:    CategoryNegative,
		Rule:        ScoringRule{ScoreDelta: 20},
	},
	{
		Type:        TypeBadNumber,
		DisplayName: "Bad number",
		Description: "Number is invalid or belongs to someone else.",
		Category:    CategoryAdministrative,
		Rule:        ScoringRule{ScoreDelta: 50},
	},
	{
		Type:           TypeNoClaim,
		DisplayName:    "No claim",
		Description:    "User is not eligible.",
		Category:       CategoryAdministrative,
		Rule:           ScoringRule{ScoreDelta: 0, TriggersConversion: true},
		ConversionType: ConversionNoLongerEligible,
	},
	{
		Type:        TypeNotInterested,
		DisplayName: "Not interested",
		Description: "User declined to proceed.",
		Category:    CategoryNegative,
		Rule:        ScoringRule{ScoreDelta: 100},
	},
	{
		Type:           TypeDoNotContact,
		DisplayName:    "Do not contact",
		Description:    "User asked not to be contacted again.",
		Category:       CategoryAdministrative,
		Rule:           ScoringRule{ScoreDelta: 0, TriggersConversion: true},
		ConversionType: ConversionOptedOut,
		RequiresNotes:  true,
	},
}

var definitionsByType = func() map[Type]Definition {
	m := make(map[Type]Definition, len(definitions))
	for _, d := range definitions {
		m[d.Type] = d
	}
	return m
}()

// Lookup returns the catalog row for t.
func Lookup(t Type) (Definition, bool) {
	d, ok := definitionsByType[t]
	return d, ok
}

// Catalog returns a copy of every catalog row in display order.
func Catalog() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}
