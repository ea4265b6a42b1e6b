package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cinefiles/authcore/mail"
)

// emailPayload mirrors the engine's EmailJob wire shape.
type emailPayload struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

// NewEmailHandler adapts a mail.Sender into a job handler. Send failures
// propagate so the worker's retry and dead-letter machinery applies.
func NewEmailHandler(sender mail.Sender) Handler {
	return func(ctx context.Context, job *Job) error {
		var payload emailPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode email payload: %w", err)
		}
		if payload.To == "" {
			return fmt.Errorf("email payload missing recipient")
		}

		return sender.Send(ctx, mail.Message{
			To:       payload.To,
			Template: payload.Template,
			Data:     payload.Data,
		})
	}
}
