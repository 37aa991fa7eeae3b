package request_models

// PreferencesRequest uses pointers so a missing field can be told apart from
// an explicit false. The controller rejects payloads where either key is
// absent or null.
type PreferencesRequest struct {
	Updates    *bool `json:"updates"`
	Promotions *bool `json:"promotions"`
}
