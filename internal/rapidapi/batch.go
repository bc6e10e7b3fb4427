package rapidapi

import (
	"context"

	"driftnet/internal/jsontree"
	"driftnet/internal/model"
)

// usersChunkSize is the upstream ceiling for one get-users call.
const usersChunkSize = 40

// FetchTweetsResilient fetches tweets by id, degrading a failing batch
// by bisection: a bad id costs O(log n) extra calls instead of the
// whole batch. A single id that keeps failing yields nothing for that
// id, never an error.
func (c *Client) FetchTweetsResilient(ctx context.Context, ids []string) map[string]model.Tweet {
	out := make(map[string]model.Tweet)
	if len(ids) == 0 {
		return out
	}
	payload, err := c.TweetResultsByRestIDs(ctx, ids)
	if err != nil {
		if ctx.Err() != nil {
			return out
		}
		if len(ids) > 1 {
			mid := len(ids) / 2
			for id, t := range c.FetchTweetsResilient(ctx, ids[:mid]) {
				out[id] = t
			}
			for id, t := range c.FetchTweetsResilient(ctx, ids[mid:]) {
				out[id] = t
			}
			return out
		}
		// Down to one id: the detail endpoint sometimes serves tweets
		// the batch endpoint rejects.
		if t, ok := c.fetchTweetDetail(ctx, ids[0]); ok {
			out[t.ID] = t
			return out
		}
		c.log.Warn().Str("tweet_id", ids[0]).Err(err).Msg("skipping tweet id after batch error")
		return out
	}
	for _, item := range jsontree.BatchResults(payload) {
		tweetObj, ok := item["result"].(map[string]any)
		if !ok {
			// Some shapes return the tweet node directly.
			if item["__typename"] == "Tweet" {
				tweetObj = item
			} else {
				continue
			}
		}
		t := jsontree.SanitizeTweet(tweetObj)
		if t.ID != "" {
			out[t.ID] = t
		}
	}
	return out
}

// fetchTweetDetail fetches one tweet through the detail endpoint and
// returns the sanitized node matching the requested id.
func (c *Client) fetchTweetDetail(ctx context.Context, id string) (model.Tweet, bool) {
	payload, err := c.TweetDetail(ctx, id)
	if err != nil {
		return model.Tweet{}, false
	}
	for _, node := range jsontree.Tweets(payload) {
		t := jsontree.SanitizeTweet(node)
		if t.ID == id {
			return t, true
		}
	}
	return model.Tweet{}, false
}

// fetchUsersResilient fetches one chunk of user records, bisecting on
// failure the same way as the tweet path.
func (c *Client) fetchUsersResilient(ctx context.Context, ids []string) []model.DiscoveredUser {
	if len(ids) == 0 {
		return nil
	}
	payload, err := c.UsersByIDs(ctx, ids)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if len(ids) > 1 {
			mid := len(ids) / 2
			left := c.fetchUsersResilient(ctx, ids[:mid])
			right := c.fetchUsersResilient(ctx, ids[mid:])
			return append(left, right...)
		}
		c.log.Warn().Str("user_id", ids[0]).Err(err).Msg("skipping user id after batch error")
		return nil
	}
	return normalizeUserRecords(payload)
}

// FetchUsersByIDs resolves user profiles for the given ids, chunked to
// the upstream limit, preserving the requested order. Ids with no
// resolvable record are dropped.
func (c *Client) FetchUsersByIDs(ctx context.Context, ids []string) []model.DiscoveredUser {
	byID := make(map[string]model.DiscoveredUser)
	for i := 0; i < len(ids); i += usersChunkSize {
		end := i + usersChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		for _, u := range c.fetchUsersResilient(ctx, ids[i:end]) {
			if u.ID != "" {
				byID[u.ID] = u
			}
		}
	}
	out := make([]model.DiscoveredUser, 0, len(byID))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		} else {
			c.log.Warn().Str("user_id", id).Msg("missing user data for id")
		}
	}
	return out
}

// normalizeUserRecords tolerates the two shapes the users endpoint
// returns: a result list of wrapped records, or a ready users list.
func normalizeUserRecords(payload map[string]any) []model.DiscoveredUser {
	var entries []any
	if list, ok := payload["result"].([]any); ok {
		entries = list
	} else if list, ok := payload["users"].([]any); ok {
		entries = list
	} else if inner, ok := payload["data"].(map[string]any); ok {
		return normalizeUserRecords(inner)
	}
	var out []model.DiscoveredUser
	for _, entry := range entries {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if u, ok := simplifyUser(m); ok {
			out = append(out, u)
		}
	}
	return out
}

// simplifyUser digs the legacy block out of a user entry. Fallback
// responses carry a legacy-like structure at the top level.
func simplifyUser(entry map[string]any) (model.DiscoveredUser, bool) {
	legacy, _ := entry["legacy"].(map[string]any)
	if legacy == nil {
		if result, ok := entry["result"].(map[string]any); ok {
			legacy, _ = result["legacy"].(map[string]any)
		}
	}
	if legacy == nil {
		for _, key := range []string{"screen_name", "followers_count", "friends_count"} {
			if _, ok := entry[key]; ok {
				legacy = entry
				break
			}
		}
	}
	if legacy == nil {
		return model.DiscoveredUser{}, false
	}
	id := jsontree.FirstID(legacy)
	if id == "" {
		id = jsontree.FirstID(entry)
	}
	u := model.DiscoveredUser{
		ID:             id,
		ScreenName:     str(legacy["screen_name"]),
		Name:           str(legacy["name"]),
		Description:    str(legacy["description"]),
		CreatedAt:      str(legacy["created_at"]),
		FollowersCount: num(legacy["followers_count"]),
		FollowingCount: num(legacy["friends_count"]),
	}
	return u, u.ScreenName != "" || u.ID != ""
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	}
	return 0
}
