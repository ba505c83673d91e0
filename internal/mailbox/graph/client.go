// Package graph is the Microsoft Graph mailbox provider: the same
// logical contract as the IMAP session client, spoken over an
// HTTP/JSON API with application-managed bearer-token refresh.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tdvo/mailscreen/internal/mailbox"
)

const (
	defaultBaseURL  = "https://graph.microsoft.com/v1.0"
	defaultTokenURL = "https://login.microsoftonline.com/common/oauth2/v2.0/token"

	tokenScope = "https://graph.microsoft.com/Mail.Read offline_access User.Read"
)

// Client is a thin HTTP client for the Microsoft Graph mail API. It
// refreshes the access token shortly before expiry and persists the
// rotated refresh token through its TokenStore.
type Client struct {
	clientID   string
	httpClient *http.Client
	tokens     TokenStore
	logger     *zap.Logger

	baseURL  string
	tokenURL string

	mu sync.Mutex // serializes token refresh
}

// NewClient creates a Graph client for the registered OAuth
// application clientID, persisting tokens through store.
func NewClient(clientID string, store TokenStore, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		clientID: clientID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		tokens:   store,
		logger:   logger,
		baseURL:  defaultBaseURL,
		tokenURL: defaultTokenURL,
	}
}

// token returns a valid access token, refreshing it when expired or
// close to expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tokens, err := c.tokens.Load()
	if err != nil {
		return "", err
	}
	if tokens == nil || tokens.RefreshToken == "" {
		return "", &mailbox.AuthError{Provider: "graph", Message: "no stored tokens; connect the account first"}
	}
	if tokens.valid(time.Now()) {
		return tokens.AccessToken, nil
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {tokens.RefreshToken},
		"scope":         {tokenScope},
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &mailbox.TransportError{Op: "token refresh", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &mailbox.TransportError{Op: "token refresh", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &mailbox.AuthError{
			Provider: "graph",
			Message:  fmt.Sprintf("token refresh failed (%d): %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}

	tokens.AccessToken = result.AccessToken
	if result.RefreshToken != "" {
		tokens.RefreshToken = result.RefreshToken
	}
	if result.ExpiresIn == 0 {
		result.ExpiresIn = 3600
	}
	tokens.ExpiresAt = time.Now().Add(time.Duration(result.ExpiresIn) * time.Second)

	if err := c.tokens.Save(tokens); err != nil {
		c.logger.Warn("persisting refreshed tokens failed", zap.Error(err))
	}

	return tokens.AccessToken, nil
}

// get performs an authenticated GET and unmarshals the JSON response.
// A network-level failure is retried once; HTTP status codes map onto
// the shared error taxonomy.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if isNetErr(err) && attempt == 0 {
				continue
			}
			return &mailbox.TransportError{Op: "GET " + path, Err: err}
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			if attempt == 0 {
				continue
			}
			return &mailbox.TransportError{Op: "GET " + path, Err: readErr}
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return &mailbox.AuthError{Provider: "graph", Message: "token expired or invalid (401)"}
		case resp.StatusCode == http.StatusNotFound:
			return &mailbox.NotFoundError{Kind: "resource", ID: path}
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return fmt.Errorf("graph API error %d on %s: %s",
				resp.StatusCode, path, truncate(string(body), 500))
		}

		if result == nil {
			return nil
		}
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s: %w", path, err)
		}
		return nil
	}

	return &mailbox.TransportError{Op: "GET " + path, Err: lastErr}
}

func isNetErr(err error) bool {
	var nErr net.Error
	return errors.As(err, &nErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
