// Package rapidapi is the client for the RapidAPI Twitter endpoints.
// Every logical call runs under the shared rate-limiter slot budget,
// a per-host pacer, and the 429 cooldown-and-retry loop.
package rapidapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"driftnet/internal/config"
	"driftnet/internal/jsontree"
	"driftnet/internal/logging"
	"driftnet/internal/metrics"
	"driftnet/internal/ratelimit"
)

// Client issues calls against the upstream API. One Client (and its
// limiter) is shared per target host so the budget is global.
type Client struct {
	baseURL    string
	apiKey     string
	host       string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	pacer      *rate.Limiter

	stagger             time.Duration
	cooldown            time.Duration
	maxRateLimitRetries int

	log zerolog.Logger
}

// New builds a client from config. The per-call timeout lives on the
// embedded http.Client; pagination runs themselves have no deadline.
func New(cfg config.APIConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps < 1 {
		rps = 1
	}
	return &Client{
		baseURL:             "https://" + cfg.Host,
		apiKey:              cfg.Key,
		host:                cfg.Host,
		httpClient:          &http.Client{Timeout: timeout},
		limiter:             ratelimit.New(rps, time.Second),
		pacer:               rate.NewLimiter(rate.Limit(rps), rps),
		stagger:             time.Duration(cfg.StaggerMs) * time.Millisecond,
		cooldown:            time.Duration(cfg.CooldownSeconds) * time.Second,
		maxRateLimitRetries: cfg.MaxRateLimitRetries,
		log:                 logging.NewLogger("rapidapi"),
	}
}

// getJSON runs one logical GET under rate control: limiter slot, fixed
// stagger, pacing, then the call, retrying on 429 with a fixed cooldown
// until the optional ceiling is hit. The slot is released on every exit
// path.
func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values) (map[string]any, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.limiter.Release()

	if c.stagger > 0 {
		select {
		case <-time.After(c.stagger):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	attempt := 0
	for {
		attempt++
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		payload, err := c.doOnce(ctx, endpoint, params)
		if err == nil {
			return payload, nil
		}
		if !IsRateLimited(err) {
			c.log.Error().Str("endpoint", endpoint).Err(err).Msg("api request failed")
			return nil, err
		}
		metrics.RateLimitHits.Inc()
		metrics.IncAPIRetry(endpoint)
		if c.maxRateLimitRetries > 0 && attempt > c.maxRateLimitRetries {
			c.log.Error().Str("endpoint", endpoint).Int("attempts", attempt).Msg("rate limit retry ceiling reached")
			return nil, err
		}
		c.log.Warn().Str("endpoint", endpoint).Dur("cooldown", c.cooldown).Msg("rate limit exceeded, cooling down")
		select {
		case <-time.After(c.cooldown):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) doOnce(ctx context.Context, endpoint string, params url.Values) (map[string]any, error) {
	u := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("x-rapidapi-host", c.host)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Endpoint: endpoint, Body: string(body)}
	}
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", endpoint, err)
	}
	return payload, nil
}

// UserResult resolves a screen name to its user id and raw payload.
func (c *Client) UserResult(ctx context.Context, screenName string) (string, map[string]any, error) {
	params := url.Values{"username": {screenName}}
	payload, err := c.getJSON(ctx, "UserResultByScreenName", params)
	if err != nil {
		return "", nil, err
	}
	userID := jsontree.FirstID(payload)
	if userID == "" {
		return "", nil, fmt.Errorf("no user id found for @%s", screenName)
	}
	return userID, payload, nil
}

// UserTweetsReplies fetches one page of a user's tweets and replies.
// An empty cursor requests the first page.
func (c *Client) UserTweetsReplies(ctx context.Context, userID, cursor string) (map[string]any, error) {
	params := url.Values{"user_id": {userID}}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	return c.getJSON(ctx, "UserTweetsReplies", params)
}

// TweetResultsByRestIDs fetches up to 20 tweets in one call.
func (c *Client) TweetResultsByRestIDs(ctx context.Context, ids []string) (map[string]any, error) {
	params := url.Values{"tweet_ids": {strings.Join(ids, ",")}}
	return c.getJSON(ctx, "TweetResultsByRestIds", params)
}

// TweetDetail fetches a single tweet.
func (c *Client) TweetDetail(ctx context.Context, tweetID string) (map[string]any, error) {
	params := url.Values{"tweet_id": {tweetID}}
	return c.getJSON(ctx, "TweetDetailv3", params)
}

// FollowingIDs fetches one page of the newest accounts a user follows.
// It returns the ids and the next cursor; "0" and "-1" mean exhausted.
func (c *Client) FollowingIDs(ctx context.Context, username string, count int, cursor string) ([]string, string, error) {
	if count < 1 {
		count = 1
	}
	params := url.Values{
		"username": {username},
		"count":    {fmt.Sprintf("%d", count)},
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	payload, err := c.getJSON(ctx, "following-ids", params)
	if err != nil {
		return nil, "", err
	}
	var ids []string
	if list, ok := payload["ids"].([]any); ok {
		for _, v := range list {
			switch id := v.(type) {
			case string:
				ids = append(ids, id)
			case float64:
				ids = append(ids, fmt.Sprintf("%.0f", id))
			}
		}
	}
	next := ""
	for _, key := range []string{"next_cursor", "next_cursor_str"} {
		if v, ok := payload[key]; ok {
			switch t := v.(type) {
			case string:
				next = t
			case float64:
				next = fmt.Sprintf("%.0f", t)
			}
			if next != "" {
				break
			}
		}
	}
	if next == "0" || next == "-1" {
		next = ""
	}
	return ids, next, nil
}

// UsersByIDs fetches user records for the given ids in one call.
func (c *Client) UsersByIDs(ctx context.Context, ids []string) (map[string]any, error) {
	params := url.Values{"users": {strings.Join(ids, ",")}}
	return c.getJSON(ctx, "get-users-v2", params)
}

// CollectFollowingIDs pages the following-ids endpoint until count ids
// are collected or the cursor is exhausted.
func (c *Client) CollectFollowingIDs(ctx context.Context, username string, count int) ([]string, error) {
	var collected []string
	cursor := ""
	for len(collected) < count {
		ids, next, err := c.FollowingIDs(ctx, username, count-len(collected), cursor)
		if err != nil {
			return collected, err
		}
		collected = append(collected, ids...)
		if next == "" || len(ids) == 0 {
			break
		}
		cursor = next
	}
	if len(collected) > count {
		collected = collected[:count]
	}
	return collected, nil
}
