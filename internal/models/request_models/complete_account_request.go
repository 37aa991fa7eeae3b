package request_models

type CompleteAccountRequest struct {
	FirstName string  `json:"firstName" binding:"required,min=1,max=100"`
	LastName  *string `json:"lastName" binding:"omitempty,max=100"`
}
