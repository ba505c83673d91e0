package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tdvo/mailscreen/internal/mailbox"
)

const defaultDeviceCodeURL = "https://login.microsoftonline.com/common/oauth2/v2.0/devicecode"

// DeviceCode is the user-facing half of a device authorization: the
// code to type and the page to type it into.
type DeviceCode struct {
	UserCode        string
	VerificationURL string
	Message         string

	deviceCode string
	interval   time.Duration
	expiresAt  time.Time
}

// BeginDeviceAuth starts the OAuth device-code flow and returns the
// code the user must enter. Call WaitForDeviceAuth to block until the
// user completes sign-in.
func (c *Client) BeginDeviceAuth(ctx context.Context) (*DeviceCode, error) {
	form := url.Values{
		"client_id": {c.clientID},
		"scope":     {tokenScope},
	}

	deviceCodeURL := defaultDeviceCodeURL
	if c.tokenURL != defaultTokenURL {
		// Test servers override tokenURL; derive the device endpoint
		// from the same host.
		deviceCodeURL = strings.TrimSuffix(c.tokenURL, "/token") + "/devicecode"
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, deviceCodeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating device code request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &mailbox.TransportError{Op: "device code", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &mailbox.TransportError{Op: "device code", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &mailbox.AuthError{
			Provider: "graph",
			Message:  fmt.Sprintf("device code request failed (%d): %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	var result struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURI string `json:"verification_uri"`
		ExpiresIn       int    `json:"expires_in"`
		Interval        int    `json:"interval"`
		Message         string `json:"message"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding device code response: %w", err)
	}
	if result.Interval == 0 {
		result.Interval = 5
	}

	return &DeviceCode{
		UserCode:        result.UserCode,
		VerificationURL: result.VerificationURI,
		Message:         result.Message,
		deviceCode:      result.DeviceCode,
		interval:        time.Duration(result.Interval) * time.Second,
		expiresAt:       time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}, nil
}

// WaitForDeviceAuth polls the token endpoint until the user completes
// sign-in, then persists the issued tokens.
func (c *Client) WaitForDeviceAuth(ctx context.Context, code *DeviceCode) error {
	ticker := time.NewTicker(code.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(code.expiresAt) {
			return &mailbox.AuthError{Provider: "graph", Message: "device code expired before sign-in completed"}
		}

		done, err := c.pollDeviceToken(ctx, code.deviceCode)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

func (c *Client) pollDeviceToken(ctx context.Context, deviceCode string) (bool, error) {
	form := url.Values{
		"client_id":   {c.clientID},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
		"device_code": {deviceCode},
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("creating token poll request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, &mailbox.TransportError{Op: "device token poll", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, &mailbox.TransportError{Op: "device token poll", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &errResp)
		switch errResp.Error {
		case "authorization_pending", "slow_down":
			return false, nil
		case "authorization_declined":
			return false, &mailbox.AuthError{Provider: "graph", Message: "sign-in was declined"}
		}
		return false, &mailbox.AuthError{
			Provider: "graph",
			Message:  fmt.Sprintf("device token poll failed (%d): %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	var result struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return false, fmt.Errorf("decoding device token response: %w", err)
	}

	tokens := &Tokens{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}
	if err := c.tokens.Save(tokens); err != nil {
		c.logger.Warn("persisting tokens failed", zap.Error(err))
	}
	return true, nil
}
