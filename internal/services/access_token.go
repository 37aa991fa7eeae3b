package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"newsletter/internal/infra"
)

const (
	accessTokenLifetime     = time.Hour
	accessTokenExpiryBuffer = 5 * time.Minute
)

// AccessTokenSource exchanges the stored OAuth2 refresh token for SMTP access
// tokens and caches the result. ForceRefresh drops the cached token (and the
// cached SMTP secret bundle) so the next queue retry authenticates freshly.
type AccessTokenSource struct {
	secrets    infra.SecretStore
	secretName string
	httpClient *http.Client

	// endpoint overrides the Microsoft token URL in tests
	endpoint string

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
}

func NewAccessTokenSource(secrets infra.SecretStore) *AccessTokenSource {
	name := os.Getenv("SMTP_SECRET_NAME")
	if name == "" {
		name = "newsletter/smtp"
	}
	return &AccessTokenSource{
		secrets:    secrets,
		secretName: name,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *AccessTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Since(s.fetchedAt) < accessTokenLifetime-accessTokenExpiryBuffer {
		return s.token, nil
	}

	token, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}

	s.token = token
	s.fetchedAt = time.Now()
	return token, nil
}

func (s *AccessTokenSource) ForceRefresh() {
	s.mu.Lock()
	s.token = ""
	s.fetchedAt = time.Time{}
	s.mu.Unlock()
	s.secrets.Invalidate(s.secretName)
	log.Println("Access token cache cleared; next send will re-authenticate")
}

func (s *AccessTokenSource) fetch(ctx context.Context) (string, error) {
	bundle, err := s.secrets.Get(ctx, s.secretName)
	if err != nil {
		return "", err
	}

	for _, key := range []string{"OUTLOOK_TENANT_ID", "OUTLOOK_CLIENT_ID", "OUTLOOK_CLIENT_SECRET", "OUTLOOK_REFRESH_TOKEN"} {
		if bundle[key] == "" {
			return "", fmt.Errorf("secret %q is missing %s", s.secretName, key)
		}
	}

	form := url.Values{
		"client_id":     {bundle["OUTLOOK_CLIENT_ID"]},
		"client_secret": {bundle["OUTLOOK_CLIENT_SECRET"]},
		"refresh_token": {bundle["OUTLOOK_REFRESH_TOKEN"]},
		"grant_type":    {"refresh_token"},
		"scope":         {"https://outlook.office365.com/.default"},
	}

	endpoint := s.endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", bundle["OUTLOOK_TENANT_ID"])
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode access token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access token (status %d)", resp.StatusCode)
	}

	return body.AccessToken, nil
}
