// internal/api/client.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/codeduel-dev/codeduel/internal/protocol"
)

// Client covers the REST surface that exists alongside the realtime
// channel: profile, history, leaderboard, and the public room listing.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// NewClient creates an API client. logger may be nil to disable request
// logging.
func NewClient(baseURL, token string, logger *logrus.Logger) *Client {
	transport := http.DefaultTransport
	if logger != nil {
		transport = &loggingTransport{next: transport, log: logger}
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second, Transport: transport},
	}
}

// loggingTransport logs each request's method, path, status and
// duration.
type loggingTransport struct {
	next http.RoundTripper
	log  *logrus.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	fields := logrus.Fields{
		"method":   req.Method,
		"path":     req.URL.Path,
		"duration": time.Since(start).String(),
	}
	if err != nil {
		t.log.WithFields(fields).WithError(err).Warn("api request failed")
		return resp, err
	}
	fields["status"] = resp.StatusCode
	t.log.WithFields(fields).Debug("api request")
	return resp, nil
}

// Profile is the match-facing view of an account.
type Profile struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Level        int    `json:"level"`
	XP           int    `json:"xp"`
	Rank         int    `json:"rank"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
	TotalMatches int    `json:"totalMatches"`
}

// HistoryEntry is one finished match as the backend records it.
type HistoryEntry struct {
	MatchID    string `json:"matchId"`
	Opponent   string `json:"opponent"`
	Outcome    string `json:"outcome"`
	ProblemID  string `json:"problemId"`
	DurationMs int64  `json:"matchDuration"`
	PlayedAt   string `json:"playedAt"`
}

// LeaderboardEntry is one row of the global ranking.
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Level    int    `json:"level"`
	XP       int    `json:"xp"`
	Wins     int    `json:"wins"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("api request failed: %s %s: %s", req.Method, path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Profile fetches the caller's match profile.
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	var p Profile
	err := c.get(ctx, "/api/match/profile", &p)
	return p, err
}

// History fetches the caller's recent matches.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := c.get(ctx, "/api/match/history", &entries)
	return entries, err
}

// Leaderboard fetches the global ranking.
func (c *Client) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := c.get(ctx, "/api/match/leaderboard", &entries)
	return entries, err
}

// PublicRooms fetches the joinable room listing over REST, as a
// fallback for when the realtime listing has not arrived yet.
func (c *Client) PublicRooms(ctx context.Context) ([]protocol.RoomListing, error) {
	var rooms []protocol.RoomListing
	err := c.get(ctx, "/api/rooms", &rooms)
	return rooms, err
}
