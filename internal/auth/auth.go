// internal/auth/auth.go
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// User is the authenticated profile the backend returns.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Level        int    `json:"level"`
	XP           int    `json:"xp"`
	Rank         int    `json:"rank"`
	Wins         int    `json:"wins"`
	TotalMatches int    `json:"totalMatches"`
}

// Client performs the auth flow against the backend and caches the
// bearer token locally. The realtime channel is only established once a
// credential exists; revoking it tears the channel down (the caller
// owns that wiring).
type Client struct {
	baseURL   string
	http      *http.Client
	tokenPath string
}

// NewClient creates an auth client. tokenPath is where the bearer token
// is cached between runs.
func NewClient(baseURL, tokenPath string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient, tokenPath: tokenPath}
}

type authResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Login exchanges credentials for a bearer token and profile.
func (c *Client) Login(ctx context.Context, email, password string) (string, User, error) {
	return c.post(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Signup registers a new account.
func (c *Client) Signup(ctx context.Context, username, email, password string) (string, User, error) {
	return c.post(ctx, "/api/auth/signup", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
}

func (c *Client) post(ctx context.Context, path string, body map[string]string) (string, User, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", User{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", User{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", User{}, fmt.Errorf("auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", User{}, fmt.Errorf("auth request failed: %s: %s", resp.Status, bytes.TrimSpace(data))
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", User{}, fmt.Errorf("decode auth response: %w", err)
	}
	if parsed.Token == "" {
		return "", User{}, fmt.Errorf("auth response missing token")
	}
	return parsed.Token, parsed.User, nil
}

// Verify checks a cached token against the backend and returns the
// profile it belongs to.
func (c *Client) Verify(ctx context.Context, token string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/verify", nil)
	if err != nil {
		return User{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("verify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("token rejected: %s", resp.Status)
	}
	var parsed struct {
		User User `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return User{}, fmt.Errorf("decode verify response: %w", err)
	}
	return parsed.User, nil
}

// SaveToken caches the token on disk, owner-readable only.
func (c *Client) SaveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(c.tokenPath), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(c.tokenPath, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// LoadToken reads the cached token. Empty string when none exists.
func (c *Client) LoadToken() string {
	data, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(data))
}

// ClearToken revokes the local credential.
func (c *Client) ClearToken() error {
	err := os.Remove(c.tokenPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Expiry reads the token's expiration claim without verifying the
// signature; verification is the server's job, the client only needs to
// know whether a round trip is worth attempting.
func Expiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		// No expiry claim: token never expires.
		return time.Time{}, nil
	}
	return exp.Time, nil
}

// Expired reports whether the token carries an exp claim in the past.
// Unparseable tokens count as expired.
func Expired(token string, now time.Time) bool {
	exp, err := Expiry(token)
	if err != nil {
		return true
	}
	if exp.IsZero() {
		return false
	}
	return exp.Before(now)
}
