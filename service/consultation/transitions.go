package consultation

import (
	"fmt"

	"github.com/wayne-blip/agromedicana-server/cmd/models"
	"github.com/wayne-blip/agromedicana-server/service/notification"
	"gorm.io/gorm"
)

// statusChange identifies one edge of the consultation state machine.
type statusChange struct {
	from, to string
}

var allowedTransitions = map[statusChange]bool{
	{models.ConsultationPending, models.ConsultationAccepted}:   true,
	{models.ConsultationPending, models.ConsultationRejected}:   true,
	{models.ConsultationAccepted, models.ConsultationCompleted}: true,
}

// CanTransition reports whether the state machine permits moving a
// consultation from one status to another. Same-status updates are no-ops
// handled by the caller, not transitions.
func CanTransition(from, to string) bool {
	return allowedTransitions[statusChange{from, to}]
}

// ActorMayTransition checks the authorization rule for a transition:
// pending consultations are decided by the assigned expert alone, while
// either party may mark an accepted consultation completed.
func ActorMayTransition(c *models.Consultation, actorID uint, to string) bool {
	isExpert := c.ExpertID != nil && *c.ExpertID == actorID
	isClient := c.ClientID == actorID

	switch to {
	case models.ConsultationAccepted, models.ConsultationRejected:
		return isExpert
	case models.ConsultationCompleted:
		return isExpert || isClient
	default:
		return false
	}
}

// transitionNote describes the single notification a status change produces.
type transitionNote struct {
	title       string
	description func(c *models.Consultation) string
	// recipient resolves who gets notified; the counterpart of the actor
	// for completion, the client for expert decisions.
	recipient func(c *models.Consultation, actorID uint) uint
}

func toClient(c *models.Consultation, _ uint) uint { return c.ClientID }

func toCounterpart(c *models.Consultation, actorID uint) uint {
	if c.ClientID == actorID && c.ExpertID != nil {
		return *c.ExpertID
	}
	return c.ClientID
}

var transitionNotes = map[statusChange]transitionNote{
	{models.ConsultationPending, models.ConsultationAccepted}: {
		title: "Consultation Accepted",
		description: func(c *models.Consultation) string {
			return fmt.Sprintf("%s accepted your consultation request on %q", c.ExpertName, c.Topic)
		},
		recipient: toClient,
	},
	{models.ConsultationPending, models.ConsultationRejected}: {
		title: "Consultation Declined",
		description: func(c *models.Consultation) string {
			return fmt.Sprintf("%s declined your consultation request on %q", c.ExpertName, c.Topic)
		},
		recipient: toClient,
	},
	{models.ConsultationAccepted, models.ConsultationCompleted}: {
		title: "Consultation Completed",
		description: func(c *models.Consultation) string {
			return fmt.Sprintf("Your consultation on %q was marked completed", c.Topic)
		},
		recipient: toCounterpart,
	},
}

// notifyTransition fires the at-most-one notification for a status change.
// Callers only invoke it after the status actually changed, so a no-op
// update never notifies.
func notifyTransition(db *gorm.DB, c *models.Consultation, from, to string, actorID uint) {
	note, ok := transitionNotes[statusChange{from, to}]
	if !ok {
		return
	}
	refID := c.ID
	notification.Create(db, note.recipient(c, actorID), models.NotificationConsultation,
		note.title, note.description(c), "/consultations", &refID)
}
