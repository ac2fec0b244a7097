package authstate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/medisync/session-gateway/internal/core/domain"
)

// HTTPProfileFetcher loads the profile through the gateway's current-session
// endpoint, authenticated by the session cookie.
type HTTPProfileFetcher struct {
	BaseURL string
	Cookie  func() string
	Client  *http.Client
}

func NewHTTPProfileFetcher(baseURL string, cookie func() string) *HTTPProfileFetcher {
	return &HTTPProfileFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Cookie:  cookie,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type sessionResponse struct {
	UID     string          `json:"uid"`
	Profile *domain.Profile `json:"profile"`
}

func (f *HTTPProfileFetcher) FetchProfile(ctx context.Context, uid string) (*domain.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/api/auth/session", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.Cookie != nil {
		if v := f.Cookie(); v != "" {
			req.AddCookie(&http.Cookie{Name: domain.SessionCookieName, Value: v})
		}
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, domain.ErrUnauthenticated
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch profile: unexpected status %d", resp.StatusCode)
	}

	var body sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if body.UID != uid {
		return nil, fmt.Errorf("fetch profile: session belongs to another identity")
	}
	if body.Profile == nil {
		return nil, domain.ErrProfileNotFound
	}
	return body.Profile, nil
}
