package msgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"ideagraph/internal/config"
	igerrors "ideagraph/internal/errors"
)

const defaultLoginBase = "https://login.microsoftonline.com"

// tokenSource caches an app-only access token until shortly before expiry.
// Graph issues ~60 minute tokens; the cache holds them for at most 55.
type tokenSource struct {
	settings   config.GraphSettings
	loginBase  string
	httpClient *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

func newTokenSource(settings config.GraphSettings, httpClient *http.Client) *tokenSource {
	loginBase := defaultLoginBase
	if settings.BaseURL != "" {
		// Test servers carry auth on the same host.
		loginBase = settings.BaseURL
	}
	return &tokenSource{
		settings:   settings,
		loginBase:  loginBase,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// Token returns a cached access token, refreshing when expired.
func (ts *tokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expires) {
		return ts.token, nil
	}

	token, expiresIn, err := ts.fetch(ctx)
	if err != nil {
		return "", err
	}

	ttl := time.Duration(expiresIn)*time.Second - 5*time.Minute
	if ttl <= 0 || ttl > config.DefaultGraphTokenTTL {
		ttl = config.DefaultGraphTokenTTL
	}
	ts.token = token
	ts.expires = ts.now().Add(ttl)
	return token, nil
}

// Invalidate drops the cached token.
func (ts *tokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
	ts.expires = time.Time{}
}

func (ts *tokenSource) fetch(ctx context.Context) (string, int, error) {
	form := url.Values{
		"client_id":     {ts.settings.ClientID},
		"client_secret": {ts.settings.ClientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
		"grant_type":    {"client_credentials"},
	}

	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", ts.loginBase, url.PathEscape(ts.settings.TenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, igerrors.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", 0, igerrors.Transient(fmt.Errorf("token request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", 0, igerrors.FromHTTPStatus(resp.StatusCode,
			fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, string(snippet)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, igerrors.Permanent(fmt.Errorf("decode token response: %w", err))
	}
	if payload.AccessToken == "" {
		return "", 0, igerrors.Permanent(fmt.Errorf("token endpoint returned no access_token"))
	}
	return payload.AccessToken, payload.ExpiresIn, nil
}
