package notify

import "github.com/caplatform/backend/pkg/models"

// Domain events emitted by lifecycle and reconciliation operations after
// their transaction commits. Consumers never run on the request path.

type CaseCreated struct {
	Case *models.Case
}

type CaseStatusChanged struct {
	Case      *models.Case
	OldStatus models.CaseStatus
	NewStatus models.CaseStatus
}

type PaymentSucceeded struct {
	Case    *models.Case
	Payment *models.Payment
}

type DocumentUploaded struct {
	Case     *models.Case
	Document *models.Document
}

// Event is implemented by all notification event types.
type Event interface{ event() }

func (CaseCreated) event()       {}
func (CaseStatusChanged) event() {}
func (PaymentSucceeded) event()  {}
func (DocumentUploaded) event()  {}

// Notifier consumes domain events. The production implementation is
// Dispatcher; tests substitute a recorder.
type Notifier interface {
	Publish(evt Event)
}

// Discard is a Notifier that drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}
