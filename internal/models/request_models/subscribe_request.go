package request_models

type SubscribeRequest struct {
	Email string `json:"email" binding:"required,email"`
}
