package outcomes

import "time"

// Payload is the per-type structured disposition data.
// Each variant belongs to exactly one outcome type.
type Payload interface {
	OutcomeType() Type
	// Notes returns the free-form agent notes carried by the variant, if any.
	Notes() string
}

// CallbackData carries a requested future contact time.
type CallbackData struct {
	CallbackAt *time.Time `json:"callback_at"`
	Reason     string     `json:"reason,omitempty"`
	AgentNotes string     `json:"notes,omitempty"`
}

func (CallbackData) OutcomeType() Type { return TypeCallBack }
func (d CallbackData) Notes() string { return d.AgentNotes }

// DoNotContactData records an opt-out.
type DoNotContactData struct {
	AgentNotes string `json:"notes"`
	Reason     string `json:"reason,omitempty"`
	Confirmed  bool   `json:"confirmed"`
}

func (DoNotContactData) OutcomeType() Type { return TypeDoNotContact }
func (d DoNotContactData) Notes() string { return d.AgentNotes }

type NoAnswerData struct {
	// NoAnswerCount is the caller-known consecutive miss count including this call.
	// Zero means "derive from context".
	NoAnswerCount int    `json:"no_answer_count,omitempty"`
	AgentNotes    string `json:"notes,omitempty"`
}

func (NoAnswerData) OutcomeType() Type { return TypeNoAnswer }
func (d NoAnswerData) Notes() string { return d.AgentNotes }

// MissedCallData covers a user returning a call the agent could not take.
type MissedCallData struct {
	ReturnAt   *time.Time `json:"return_at,omitempty"`
	AgentNotes string     `json:"notes,omitempty"`
}

func (MissedCallData) OutcomeType() Type { return TypeMissedCall }
func (d MissedCallData) Notes() string { return d.AgentNotes }

type NotInterestedData struct {
	Reason     string `json:"reason,omitempty"`
	AgentNotes string `json:"notes,omitempty"`
}

func (NotInterestedData) OutcomeType() Type { return TypeNotInterested }
func (d NotInterestedData) Notes() string { return d.AgentNotes }

type BadNumberData struct {
	Reason     string `json:"reason,omitempty"`
	AgentNotes string `json:"notes,omitempty"`
}

func (BadNumberData) OutcomeType() Type { return TypeBadNumber }
func (d BadNumberData) Notes() string { return d.AgentNotes }

// GenericData is used by outcome types without a dedicated variant.
type GenericData struct {
	Type               Type     `json:"type"`
	AgentNotes         string   `json:"notes,omitempty"`
	DocumentsRequested []string `json:"documents_requested,omitempty"`
}

func (d GenericData) OutcomeType() Type { return d.Type }
func (d GenericData) Notes() string { return d.AgentNotes }

// Submission is the flat shape received from the UI/API collaborator.
type Submission struct {
	Notes              string
	Reason             string
	Confirmed          bool
	CallbackAt         *time.Time
	DocumentsRequested []string
	NoAnswerCount      int
}

// BuildPayload selects the payload variant for t from a flat submission.
func BuildPayload(t Type, s Submission) Payload {
	switch t {
	case TypeCallBack:
		return CallbackData{CallbackAt: s.CallbackAt, Reason: s.Reason, AgentNotes: s.Notes}
	case TypeDoNotContact:
		return DoNotContactData{AgentNotes: s.Notes, Reason: s.Reason, Confirmed: s.Confirmed}
	case TypeNoAnswer:
		return NoAnswerData{NoAnswerCount: s.NoAnswerCount, AgentNotes: s.Notes}
	case TypeMissedCall:
		return MissedCallData{ReturnAt: s.CallbackAt, AgentNotes: s.Notes}
	case TypeNotInterested:
		return NotInterestedData{Reason: s.Reason, AgentNotes: s.Notes}
	case TypeBadNumber:
		return BadNumberData{Reason: s.Reason, AgentNotes: s.Notes}
	default:
		return GenericData{Type: t, AgentNotes: s.Notes, DocumentsRequested: s.DocumentsRequested}
	}
}
