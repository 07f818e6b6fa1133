package telephony

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"outreach-platform/internal/calls"
)

var ErrInvalidCallback = errors.New("telephony: invalid status callback")

// StatusCallbackForm captures the subset of Twilio voice status callback
// fields we care about. Twilio sends application/x-www-form-urlencoded.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#statuscallback
//
// SessionId, UserId and AgentId are custom parameters added to the callback
// URL when the call is placed.
type StatusCallbackForm struct {
	CallSid      string
	AccountSid   string
	CallStatus   string
	CallDuration string
	Timestamp    string
	From         string
	To           string
	Direction    string

	SessionID string
	UserID    string
	AgentID   string
}

// ParseStatusCallback reads the form and normalizes From/To to E.164 using
// region for numbers without a country prefix.
func ParseStatusCallback(r *http.Request, region string) (StatusCallbackForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallbackForm{}, err
	}
	f := StatusCallbackForm{
		CallSid:      strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid:   strings.TrimSpace(r.PostFormValue("AccountSid")),
		CallStatus:   strings.TrimSpace(r.PostFormValue("CallStatus")),
		CallDuration: strings.TrimSpace(r.PostFormValue("CallDuration")),
		Timestamp:    strings.TrimSpace(r.PostFormValue("Timestamp")),
		From:         NormalizeE164(r.PostFormValue("From"), region),
		To:           NormalizeE164(r.PostFormValue("To"), region),
		Direction:    r.PostFormValue("Direction"),
		SessionID:    strings.TrimSpace(r.FormValue("SessionId")),
		UserID:       strings.TrimSpace(r.FormValue("UserId")),
		AgentID:      strings.TrimSpace(r.FormValue("AgentId")),
	}
	if f.CallSid == "" && f.SessionID == "" {
		return StatusCallbackForm{}, ErrInvalidCallback
	}
	return f, nil
}

// twilioStatuses maps Twilio's hyphenated status names to CallStatus.
var twilioStatuses = map[string]calls.CallStatus{
	"queued":      calls.CallStatusQueued,
	"initiated":   calls.CallStatusQueued,
	"ringing":     calls.CallStatusRinging,
	"in-progress": calls.CallStatusInProgress,
	"answered":    calls.CallStatusInProgress,
	"completed":   calls.CallStatusCompleted,
	"busy":        calls.CallStatusBusy,
	"no-answer":   calls.CallStatusNoAnswer,
	"failed":      calls.CallStatusFailed,
	"canceled":    calls.CallStatusCanceled,
}

func MapStatus(s string) (calls.CallStatus, bool) {
	st, ok := twilioStatuses[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

// ToTerminalEvent converts the form. The event time is Twilio's Timestamp
// when it parses, otherwise now. For terminal statuses EndedAt is the event
// time and ConnectedAt is derived from the reported duration.
func (f StatusCallbackForm) ToTerminalEvent(now time.Time) (calls.TerminalEvent, error) {
	status, ok := MapStatus(f.CallStatus)
	if !ok {
		return calls.TerminalEvent{}, ErrInvalidCallback
	}
	duration := 0
	if f.CallDuration != "" {
		n, err := strconv.Atoi(f.CallDuration)
		if err != nil || n < 0 {
			return calls.TerminalEvent{}, ErrInvalidCallback
		}
		duration = n
	}

	at := now.UTC()
	if f.Timestamp != "" {
		if ts, err := time.Parse(time.RFC1123Z, f.Timestamp); err == nil {
			at = ts.UTC()
		}
	}

	ev := calls.TerminalEvent{
		SessionID:       f.SessionID,
		CallSid:         f.CallSid,
		UserID:          f.UserID,
		AgentID:         f.AgentID,
		Status:          status,
		DurationSeconds: duration,
		From:            f.From,
		To:              f.To,
	}
	switch {
	case status == calls.CallStatusInProgress:
		ev.ConnectedAt = &at
	case status.Terminal():
		ev.EndedAt = &at
		if duration > 0 {
			connected := at.Add(-time.Duration(duration) * time.Second)
			ev.ConnectedAt = &connected
		}
	}
	return ev, nil
}
