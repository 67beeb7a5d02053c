package jobqueue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/habitflow/habitflow/internal/pkg/mail"
)

// processEmailJob delivers one queued email via SMTP.
func (q *Queue) processEmailJob(job *Job) error {
	payload, err := EmailJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid email payload: %w", err)
	}
	if strings.TrimSpace(payload.To) == "" {
		return errors.New("email payload missing recipient")
	}

	if err := mail.SendMail(payload.To, payload.Subject, payload.Body); err != nil {
		return fmt.Errorf("sending email to %s: %w", payload.To, err)
	}
	return nil
}
