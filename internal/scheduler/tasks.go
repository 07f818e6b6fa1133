package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"outreach-platform/internal/outcomes"
)

// TaskOutreachAction carries one follow-up action to the notification
// dispatcher, which runs outside this process.
const TaskOutreachAction = "outreach.action"

const TaskCallbackDue = "callbacks.due"

type OutreachActionPayload struct {
	UserID    string          `json:"userId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Action    outcomes.Action `json:"action"`
}

type CallbackDuePayload struct {
	CallbackID string `json:"callbackId"`
	UserID     string `json:"userId"`
}

func NewOutreachActionTask(payload OutreachActionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutreachAction, data), nil
}

func ParseOutreachActionPayload(task *asynq.Task) (OutreachActionPayload, error) {
	var payload OutreachActionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OutreachActionPayload{}, err
	}
	return payload, nil
}

func NewCallbackDueTask(payload CallbackDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCallbackDue, data), nil
}

func ParseCallbackDuePayload(task *asynq.Task) (CallbackDuePayload, error) {
	var payload CallbackDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return CallbackDuePayload{}, err
	}
	return payload, nil
}
