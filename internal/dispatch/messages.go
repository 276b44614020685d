package dispatch

import (
	"fmt"
	"strconv"

	"provider-dispatch/internal/domain"
)

// Template names understood by notifier implementations that support
// templated vendor messages. Notifiers without templates fall back to Body.
const (
	TemplateOffer        = "provider_offer"
	TemplateConfirmation = "provider_confirmation"
)

// offerMessage builds the notification sent to every candidate when a
// session is dispatched. The session id rides along in the params so a
// transport that supports structured replies can round-trip it.
func offerMessage(s *domain.Session, p domain.Provider) domain.Message {
	return domain.Message{
		Template: TemplateOffer,
		Params: map[string]string{
			"session_id":     s.ID,
			"provider_name":  p.Name,
			"category_id":    strconv.FormatInt(s.CategoryID, 10),
			"location_id":    strconv.FormatInt(s.LocationID, 10),
			"description":    s.Description,
			"client_contact": s.ClientContact,
		},
		Body: fmt.Sprintf(
			"Hello %s, there is a new service request:\n\n%s\nContact: %s\n\nDo you want to take it? Reply YES or NO.",
			p.Name, s.Description, s.ClientContact,
		),
	}
}

// confirmationMessage builds the message sent to the winning provider after
// a successful acceptance, carrying the client's contact details.
func confirmationMessage(s *domain.Session) domain.Message {
	return domain.Message{
		Template: TemplateConfirmation,
		Params: map[string]string{
			"session_id":     s.ID,
			"client_contact": s.ClientContact,
		},
		Body: fmt.Sprintf(
			"Thanks for accepting. Here are the client's details:\n%s\nContact: %s",
			s.Description, s.ClientContact,
		),
	}
}
