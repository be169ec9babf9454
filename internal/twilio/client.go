// Package twilio is a minimal REST client for the Twilio Messages API,
// covering only the outbound send used by the relay.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.twilio.com"
	clientTimeout  = 10 * time.Second
)

// Client talks to the Twilio Messages API.
type Client struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Twilio client with the given account credentials.
func NewClient(accountSID, authToken string) *Client {
	return &Client{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

// NewClientWithBaseURL creates a client pointed at a custom API host (tests).
func NewClientWithBaseURL(accountSID, authToken, baseURL string) *Client {
	c := NewClient(accountSID, authToken)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

type messageResponse struct {
	Sid     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send dispatches one message through Twilio and returns the assigned SID.
func (c *Client) Send(ctx context.Context, from, to, body string) (string, error) {
	form := url.Values{}
	form.Set("From", from)
	form.Set("To", to)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	var msgResp messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return "", fmt.Errorf("failed to decode twilio response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("twilio returned status %d (code %d): %s", resp.StatusCode, msgResp.Code, msgResp.Message)
	}
	if msgResp.Sid == "" {
		return "", fmt.Errorf("twilio response missing message sid")
	}

	return msgResp.Sid, nil
}
