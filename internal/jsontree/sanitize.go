package jsontree

import (
	"driftnet/internal/model"
)

func getMap(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

func getString(m map[string]any, key string) string {
	s, _ := asScalar(m[key])
	return s
}

func getInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func getBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

// SanitizeTweet flattens a hydrated tweet node into the model form.
func SanitizeTweet(tweet map[string]any) model.Tweet {
	legacy := getMap(tweet, "legacy")
	if legacy == nil {
		legacy = map[string]any{}
	}

	out := model.Tweet{
		ID:                getString(tweet, "rest_id"),
		ConversationID:    getString(legacy, "conversation_id_str"),
		CreatedAt:         getString(legacy, "created_at"),
		Text:              getString(legacy, "full_text"),
		InReplyToStatusID: getString(legacy, "in_reply_to_status_id_str"),
		InReplyToUserID:   getString(legacy, "in_reply_to_user_id_str"),
		QuotedStatusID:    getString(legacy, "quoted_status_id_str"),
		IsQuoteStatus:     getBool(legacy, "is_quote_status"),
		Language:          getString(legacy, "lang"),
		Source:            getString(legacy, "source"),
		Author:            extractAuthor(tweet),
		Engagement: model.Engagement{
			ReplyCount:    getInt(legacy, "reply_count"),
			RetweetCount:  getInt(legacy, "retweet_count"),
			QuoteCount:    getInt(legacy, "quote_count"),
			LikeCount:     getInt(legacy, "favorite_count"),
			BookmarkCount: getInt(legacy, "bookmark_count"),
		},
	}
	if out.ID == "" {
		out.ID = getString(legacy, "id_str")
	}
	if out.Text == "" {
		out.Text = getString(legacy, "text")
	}
	for _, key := range []string{"view_count_info", "view_counts"} {
		if info := getMap(tweet, key); info != nil {
			out.Engagement.ViewCount = getInt(info, "count")
			break
		}
	}
	out.URLs, out.Mentions, out.Hashtags, out.Media = extractEntities(legacy)
	return out
}

func extractAuthor(tweet map[string]any) model.Author {
	userResult := getMap(getMap(tweet, "core"), "user_results")
	userObj := getMap(userResult, "result")
	if userObj == nil {
		userObj = userResult
	}
	if userObj == nil {
		return model.Author{}
	}
	legacyUser := getMap(userObj, "legacy")
	coreUser := getMap(userObj, "core")
	relationship := getMap(userObj, "relationship_counts")
	verification := getMap(userObj, "verification")
	if verification == nil {
		verification = getMap(userObj, "legacy_verification_info")
	}

	author := model.Author{
		ID:         FirstID(userObj),
		ScreenName: firstNonEmpty(getString(coreUser, "screen_name"), getString(legacyUser, "screen_name")),
		Name:       firstNonEmpty(getString(coreUser, "name"), getString(legacyUser, "name")),
		Verified:   getBool(verification, "is_blue_verified"),
	}
	if relationship != nil {
		author.FollowersCount = getInt(relationship, "followers")
		author.FollowingCount = getInt(relationship, "following")
	}
	if legacyUser != nil {
		if author.FollowersCount == 0 {
			author.FollowersCount = getInt(legacyUser, "followers_count")
		}
		if author.FollowingCount == 0 {
			author.FollowingCount = getInt(legacyUser, "friends_count")
		}
		author.ProfileImageURL = firstNonEmpty(
			getString(legacyUser, "profile_image_url_https"),
			getString(legacyUser, "profile_image_url"),
		)
	}
	return author
}

func extractEntities(legacy map[string]any) ([]model.URLEntity, []model.Mention, []string, []model.Media) {
	entities := getMap(legacy, "entities")
	if entities == nil {
		entities = map[string]any{}
	}

	var urls []model.URLEntity
	for _, item := range asMapList(entities["urls"]) {
		urls = append(urls, model.URLEntity{
			DisplayURL:  getString(item, "display_url"),
			ExpandedURL: getString(item, "expanded_url"),
			URL:         getString(item, "url"),
		})
	}

	var mentions []model.Mention
	for _, item := range asMapList(entities["user_mentions"]) {
		id := getString(item, "id_str")
		if id == "" {
			id = getString(item, "id")
		}
		mentions = append(mentions, model.Mention{ScreenName: getString(item, "screen_name"), ID: id})
	}

	var hashtags []string
	for _, item := range asMapList(entities["hashtags"]) {
		if text := getString(item, "text"); text != "" {
			hashtags = append(hashtags, text)
		}
	}

	mediaList := asMapList(getMap(legacy, "extended_entities")["media"])
	if mediaList == nil {
		mediaList = asMapList(entities["media"])
	}
	var media []model.Media
	for _, item := range mediaList {
		id := getString(item, "id_str")
		if id == "" {
			id = getString(item, "id")
		}
		media = append(media, model.Media{
			ID:          id,
			Type:        getString(item, "type"),
			MediaKey:    getString(item, "media_key"),
			DisplayURL:  getString(item, "display_url"),
			ExpandedURL: getString(item, "expanded_url"),
			MediaURL:    firstNonEmpty(getString(item, "media_url_https"), getString(item, "media_url")),
		})
	}
	return urls, mentions, hashtags, media
}

func asMapList(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []map[string]any
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
