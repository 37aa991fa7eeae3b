package response_models

import "github.com/google/uuid"

// TokenValidationResponse is returned by the complete-account GET variant so
// the frontend can decide whether to render the form or the expired screen.
type TokenValidationResponse struct {
	SubscriberID uuid.UUID `json:"subscriberId"`
	IsExpired    bool      `json:"isExpired"`
	IsUsed       bool      `json:"isUsed"`
	Message      string    `json:"message"`
}
