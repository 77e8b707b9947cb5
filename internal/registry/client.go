// Package registry talks to the image registry's HTTP API for the
// operations the Docker CLI does not cover, chiefly tag deletion.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/forgefleet/archforge/pkg/logger"
)

// APIError is a non-2xx answer from the registry API. The pruner treats
// any APIError as fatal for the remaining deletions.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("registry API error (%d) during %s: %s", e.StatusCode, e.Op, e.Body)
}

// Client is a session-authenticated registry API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	logger     *logger.Logger
}

// NewClient creates a client for the registry API at baseURL.
func NewClient(baseURL string, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Default()
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: log.WithComponent("registry"),
	}
}

// Login obtains a session token. When the token is a decodable JWT its
// expiry is checked up front so a doomed prune fails here instead of
// halfway through the deletions.
func (c *Client) Login(ctx context.Context, username, password string) error {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/users/login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logging in to registry API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{Op: "login", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding login response: %w", err)
	}
	if result.Token == "" {
		return fmt.Errorf("registry login returned no token")
	}

	if expiry, ok := tokenExpiry(result.Token); ok {
		if time.Now().After(expiry) {
			return fmt.Errorf("registry session token expired at %s", expiry.UTC().Format(time.RFC3339))
		}
		c.logger.Debug("registry session established", "token_expires", expiry.UTC().Format(time.RFC3339))
	} else {
		c.logger.Debug("registry session established", "token_expires", "unknown")
	}

	c.token = result.Token
	return nil
}

// tokenExpiry decodes the session token without verifying it and returns
// its expiry claim. Verification belongs to the registry; the claim is
// only read to fail fast and to log.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// DeleteTag deletes one tag of the image repository.
func (c *Client) DeleteTag(ctx context.Context, image, tag string) error {
	url := fmt.Sprintf("%s/v2/repositories/%s/tags/%s", c.baseURL, image, tag)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("creating delete request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting tag %s: %w", tag, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{Op: fmt.Sprintf("delete tag %s", tag), StatusCode: resp.StatusCode, Body: string(body)}
	}

	c.logger.Info("registry tag deleted", "image", image, "tag", tag)
	return nil
}

// PruneTags deletes tags in order and stops at the first failure. It
// returns the tags deleted before the failure; tags after it are never
// attempted.
func (c *Client) PruneTags(ctx context.Context, image string, tags []string) ([]string, error) {
	deleted := make([]string, 0, len(tags))
	for _, tag := range tags {
		if err := c.DeleteTag(ctx, image, tag); err != nil {
			return deleted, err
		}
		deleted = append(deleted, tag)
	}
	return deleted, nil
}
