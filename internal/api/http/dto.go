package http

import (
	"provider-dispatch/internal/domain"
)

// CreateSessionRequest is the Data Transfer Object for the intake endpoint.
type CreateSessionRequest struct {
	ClientContact string `json:"client_contact" validate:"required,min=3,max=64"`
	CategoryID    int64  `json:"category_id" validate:"required,gt=0"`
	LocationID    int64  `json:"location_id" validate:"required,gt=0"`
	Description   string `json:"description" validate:"required,min=1,max=2000"`
}

// ToDomainSession converts the DTO to a domain.Session. State fields are
// assigned by the service.
func (r *CreateSessionRequest) ToDomainSession() *domain.Session {
	return &domain.Session{
		ClientContact: r.ClientContact,
		CategoryID:    r.CategoryID,
		LocationID:    r.LocationID,
		Description:   r.Description,
	}
}
