package journal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	model "github.com/zhouzirui/z-journal/backend/internal/model/journal"
)

// Client is an HTTP Backend for the journal API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for baseURL, authenticating with apiKey.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) RecentEntries(ctx context.Context, userID string, limit int) ([]model.Entry, error) {
	var out struct {
		Entries []model.Entry `json:"entries"`
	}
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.do(ctx, http.MethodGet, c.userPath(userID, "entries"), query, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) ActiveGoals(ctx context.Context, userID string) ([]model.Goal, error) {
	var out struct {
		Goals []model.Goal `json:"goals"`
	}
	if err := c.do(ctx, http.MethodGet, c.userPath(userID, "goals"), url.Values{"status": {"active"}}, nil, &out); err != nil {
		return nil, err
	}
	return out.Goals, nil
}

func (c *Client) OpenSituations(ctx context.Context, userID string) ([]model.Situation, error) {
	var out struct {
		Situations []model.Situation `json:"situations"`
	}
	if err := c.do(ctx, http.MethodGet, c.userPath(userID, "situations"), url.Values{"status": {"open"}}, nil, &out); err != nil {
		return nil, err
	}
	return out.Situations, nil
}

func (c *Client) MoodTrend(ctx context.Context, userID string, days int) (model.MoodTrend, error) {
	var out model.MoodTrend
	query := url.Values{"days": {strconv.Itoa(days)}}
	if err := c.do(ctx, http.MethodGet, c.userPath(userID, "mood-trend"), query, nil, &out); err != nil {
		return model.MoodTrend{}, err
	}
	return out, nil
}

func (c *Client) SearchMemories(ctx context.Context, userID string, q model.MemoryQuery) ([]model.MemoryResult, error) {
	var out struct {
		Results []model.MemoryResult `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, c.userPath(userID, "memories/search"), nil, q, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (c *Client) SaveEntry(ctx context.Context, entry model.NewEntry) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.userPath(entry.UserID, "entries"), nil, entry, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("journal api: save entry returned no id")
	}
	return out.ID, nil
}

func (c *Client) userPath(userID, suffix string) string {
	return "/users/" + url.PathEscape(userID) + "/" + suffix
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("journal api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("journal api %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode journal response: %w", err)
	}
	return nil
}
