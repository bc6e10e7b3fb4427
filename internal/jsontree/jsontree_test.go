package jsontree

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestNextCursorPrefersBottom(t *testing.T) {
	payload := decode(t, `{
		"instructions": [
			{"entries": [
				{"content": {"cursorType": "Top", "value": "top-cursor"}},
				{"content": {"cursorType": "Bottom", "value": "bottom-cursor"}}
			]}
		]
	}`)
	if got := NextCursor(payload); got != "bottom-cursor" {
		t.Fatalf("expected bottom cursor, got %q", got)
	}
}

func TestNextCursorFallsBackToCursorShapedField(t *testing.T) {
	payload := decode(t, `{"meta": {"next_cursor": "abc123"}}`)
	if got := NextCursor(payload); got != "abc123" {
		t.Fatalf("expected fallback cursor, got %q", got)
	}
	if got := NextCursor(decode(t, `{"data": {"items": []}}`)); got != "" {
		t.Fatalf("expected no cursor, got %q", got)
	}
}

func TestNextCursorNumericValue(t *testing.T) {
	payload := decode(t, `{"next_cursor": 1685432100000}`)
	if got := NextCursor(payload); got != "1685432100000" {
		t.Fatalf("expected numeric cursor as string, got %q", got)
	}
}

func TestTweetIDsFindsTypedAndWrappedNodes(t *testing.T) {
	payload := decode(t, `{
		"entries": [
			{"content": {"tweet_results": {"result": {"rest_id": "222"}}}},
			{"item": {"__typename": "Tweet", "rest_id": "111", "legacy": {}}},
			{"item": {"__typename": "Tweet", "rest_id": "111", "legacy": {}}}
		]
	}`)
	ids := TweetIDs(payload)
	if len(ids) != 2 || ids[0] != "111" || ids[1] != "222" {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func TestPageSignatureStableAcrossMetadataJitter(t *testing.T) {
	a := decode(t, `{
		"cursor": "page-2-cursor-aaa",
		"fetched_at": "10:00",
		"entries": [{"tweet_results": {"result": {"rest_id": "42"}}}]
	}`)
	b := decode(t, `{
		"entries": [{"tweet_results": {"result": {"rest_id": "42"}}}],
		"fetched_at": "10:05",
		"cursor": "page-2-cursor-bbb"
	}`)
	if PageSignature(a) != PageSignature(b) {
		t.Fatal("signatures differ despite equal tweet id sets")
	}

	c := decode(t, `{"entries": [{"tweet_results": {"result": {"rest_id": "43"}}}]}`)
	if PageSignature(a) == PageSignature(c) {
		t.Fatal("signatures equal for different tweet id sets")
	}
}

func TestPageSignatureWithoutIDsHashesWholePayload(t *testing.T) {
	a := decode(t, `{"status": "empty", "meta": {"x": 1}}`)
	b := decode(t, `{"meta": {"x": 1}, "status": "empty"}`)
	if PageSignature(a) != PageSignature(b) {
		t.Fatal("key order changed the signature")
	}
	c := decode(t, `{"status": "empty", "meta": {"x": 2}}`)
	if PageSignature(a) == PageSignature(c) {
		t.Fatal("different payloads share a signature")
	}
}

func TestReferencedIDs(t *testing.T) {
	tweet := decode(t, `{
		"__typename": "Tweet",
		"rest_id": "500",
		"legacy": {
			"in_reply_to_status_id_str": "100",
			"quoted_status_id_str": "200",
			"retweeted_status_id_str": "300"
		}
	}`)
	refs := ReferencedIDs(tweet)
	if len(refs) != 3 {
		t.Fatalf("expected 3 refs, got %v", refs)
	}
}

func TestConversationIDs(t *testing.T) {
	payload := decode(t, `{
		"entries": [
			{"conversation_metadata": {"all_tweet_ids": ["7", "8"]}},
			{"conversation_metadata": {"all_tweet_ids": ["8", "9"]}}
		]
	}`)
	ids := ConversationIDs(payload)
	if len(ids) != 3 || ids[0] != "7" || ids[2] != "9" {
		t.Fatalf("unexpected conversation ids: %v", ids)
	}
}

func TestBatchResultsShapes(t *testing.T) {
	flat := decode(t, `{"results": [{"result": {"rest_id": "1"}}, {"result": {"rest_id": "2"}}]}`)
	if got := BatchResults(flat); len(got) != 2 {
		t.Fatalf("flat shape: got %d", len(got))
	}
	nested := decode(t, `{"data": {"tweet_results": [{"result": {"rest_id": "3"}}]}}`)
	if got := BatchResults(nested); len(got) != 1 {
		t.Fatalf("nested shape: got %d", len(got))
	}
	single := decode(t, `{"tweetResult": {"result": {"rest_id": "4"}}}`)
	if got := BatchResults(single); len(got) != 1 {
		t.Fatalf("single shape: got %d", len(got))
	}
}

func TestSanitizeTweet(t *testing.T) {
	tweet := decode(t, `{
		"__typename": "Tweet",
		"rest_id": "900",
		"core": {"user_results": {"result": {
			"rest_id": "77",
			"legacy": {"screen_name": "alice", "name": "Alice", "followers_count": 10, "friends_count": 5}
		}}},
		"legacy": {
			"conversation_id_str": "900",
			"created_at": "Mon Jan 02 15:04:05 +0000 2006",
			"full_text": "hello world",
			"reply_count": 1,
			"favorite_count": 3,
			"is_quote_status": true,
			"quoted_status_id_str": "800",
			"lang": "en",
			"entities": {
				"urls": [{"display_url": "a.co", "expanded_url": "https://a.co", "url": "https://t.co/x"}],
				"user_mentions": [{"screen_name": "bob", "id_str": "88"}],
				"hashtags": [{"text": "go"}]
			}
		}
	}`)
	got := SanitizeTweet(tweet)
	if got.ID != "900" || got.Text != "hello world" || got.QuotedStatusID != "800" {
		t.Fatalf("unexpected tweet: %+v", got)
	}
	if got.Author.ScreenName != "alice" || got.Author.ID != "77" || got.Author.FollowersCount != 10 {
		t.Fatalf("unexpected author: %+v", got.Author)
	}
	if got.Engagement.LikeCount != 3 || got.Engagement.ReplyCount != 1 {
		t.Fatalf("unexpected engagement: %+v", got.Engagement)
	}
	if len(got.URLs) != 1 || len(got.Mentions) != 1 || len(got.Hashtags) != 1 {
		t.Fatalf("unexpected entities: %+v", got)
	}
}

func TestFirstIDPrefersRestID(t *testing.T) {
	payload := decode(t, `{"data": {"user": {"result": {"rest_id": "123", "id": "opaque"}}}}`)
	if got := FirstID(payload); got != "123" {
		t.Fatalf("expected rest_id, got %q", got)
	}
}
