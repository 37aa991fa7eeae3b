package queue_models

const (
	EventVerifyEmail     = "verify-email"
	EventWelcomeEmail    = "welcome-email"
	EventRegenerateToken = "regenerate-token"
)

// EmailJob is the message contract with the email dispatch worker. Data keys
// are event specific: verificationUrl for verify-email, accountCompletionUrl
// and preferencesUrl for welcome-email, linkUrl and origin for
// regenerate-token.
type EmailJob struct {
	EventType string            `json:"eventType"`
	Email     string            `json:"email"`
	Data      map[string]string `json:"data"`
	Attempts  int               `json:"attempts,omitempty"`
}
