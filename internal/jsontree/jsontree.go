// Package jsontree extracts identifiers, cursors, and tweet records
// from the upstream API's deeply nested payloads. The payload has no
// stable schema across response types, so extraction is a set of small
// predicate+extractor pairs applied during a generic traversal instead
// of per-response-type decoding.
package jsontree

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// walk visits every map node in the tree. Map keys are visited in
// sorted order so extraction is deterministic.
func walk(node any, visit func(map[string]any)) {
	switch n := node.(type) {
	case map[string]any:
		visit(n)
		for _, k := range sortedKeys(n) {
			walk(n[k], visit)
		}
	case []any:
		for _, item := range n {
			walk(item, visit)
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// asScalar renders strings and JSON numbers as a string id/cursor.
func asScalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	}
	return "", false
}

// NextCursor finds the pagination cursor in a timeline payload. Nodes
// that declare cursorType "Bottom" win; otherwise the first field whose
// name contains "cursor" and carries a scalar value is used.
func NextCursor(payload any) string {
	var bottom, any_ []string
	walk(payload, func(node map[string]any) {
		ctype, ok := node["cursorType"]
		if !ok {
			ctype = node["cursor_type"]
		}
		if ctype != nil {
			if val, ok := asScalar(node["value"]); ok {
				if strings.EqualFold(toString(ctype), "bottom") {
					bottom = append(bottom, val)
				} else if toString(ctype) != "" {
					any_ = append(any_, val)
				}
			}
		}
		for _, k := range sortedKeys(node) {
			kl := strings.ToLower(k)
			if kl == "cursortype" || kl == "cursor_type" || !strings.Contains(kl, "cursor") {
				continue
			}
			if val, ok := asScalar(node[k]); ok {
				any_ = append(any_, val)
			}
		}
	})
	if len(bottom) > 0 {
		return bottom[0]
	}
	if len(any_) > 0 {
		return any_[0]
	}
	return ""
}

func toString(v any) string {
	s, _ := asScalar(v)
	return s
}

// FirstID finds the first identifier in the subtree, checking rest_id,
// id_str, then id at each node before descending.
func FirstID(payload any) string {
	switch n := payload.(type) {
	case map[string]any:
		for _, key := range []string{"rest_id", "id_str", "id"} {
			if val, ok := asScalar(n[key]); ok {
				return val
			}
		}
		for _, k := range sortedKeys(n) {
			if found := FirstID(n[k]); found != "" {
				return found
			}
		}
	case []any:
		for _, item := range n {
			if found := FirstID(item); found != "" {
				return found
			}
		}
	}
	return ""
}

// TweetIDs collects tweet ids from every node that looks like a tweet
// record: either a tweet_results wrapper or a __typename Tweet node.
// The result is sorted and deduplicated.
func TweetIDs(payload any) []string {
	seen := map[string]struct{}{}
	walk(payload, func(node map[string]any) {
		if tr, ok := node["tweet_results"].(map[string]any); ok {
			if id := FirstID(tr); id != "" {
				seen[id] = struct{}{}
			}
		}
		if node["__typename"] == "Tweet" {
			if id := FirstID(node); id != "" {
				seen[id] = struct{}{}
			}
		}
	})
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PageSignature computes a stable hash of a page payload for duplicate
// detection. When the payload contains tweet ids the hash covers only
// the sorted id set, so cursor and metadata jitter between otherwise
// identical pages does not change the signature. Otherwise the hash
// covers the whole payload in canonical (key-sorted, compact) form.
func PageSignature(payload any) string {
	var basis any
	if ids := TweetIDs(payload); len(ids) > 0 {
		basis = map[string]any{"tweets": ids}
	} else {
		basis = payload
	}
	serialized, err := json.Marshal(basis)
	if err != nil {
		serialized = []byte(err.Error())
	}
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:])
}

// Tweets returns every hydrated tweet node (__typename Tweet with a
// legacy block) in the payload.
func Tweets(payload any) []map[string]any {
	var out []map[string]any
	walk(payload, func(node map[string]any) {
		if node["__typename"] == "Tweet" {
			if _, ok := node["legacy"]; ok {
				out = append(out, node)
			}
		}
	})
	return out
}

// ReferencedIDs returns ids a tweet points at without hydrating them:
// its reply target, quote target, and retweet source.
func ReferencedIDs(tweet map[string]any) []string {
	legacy, _ := tweet["legacy"].(map[string]any)
	if legacy == nil {
		return nil
	}
	var refs []string
	for _, key := range []string{"in_reply_to_status_id_str", "quoted_status_id_str", "retweeted_status_id_str"} {
		if val, ok := asScalar(legacy[key]); ok {
			refs = append(refs, val)
		}
	}
	return refs
}

// ConversationIDs collects ids listed in conversation_metadata
// all_tweet_ids blocks anywhere in the payload.
func ConversationIDs(payload any) []string {
	seen := map[string]struct{}{}
	walk(payload, func(node map[string]any) {
		meta, ok := node["conversation_metadata"].(map[string]any)
		if !ok {
			return
		}
		list, ok := meta["all_tweet_ids"].([]any)
		if !ok {
			return
		}
		for _, v := range list {
			if id, ok := asScalar(v); ok {
				seen[id] = struct{}{}
			}
		}
	})
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BatchResults pulls candidate tweet wrappers out of a batch lookup
// response, tolerating the several shapes the endpoint returns.
func BatchResults(data map[string]any) []map[string]any {
	if data == nil {
		return nil
	}
	var out []map[string]any
	collect := func(container map[string]any) {
		for _, key := range []string{"results", "tweet_results", "tweets", "tweetResult"} {
			switch v := container[key].(type) {
			case []any:
				for _, item := range v {
					if m, ok := item.(map[string]any); ok {
						out = append(out, m)
					}
				}
			case map[string]any:
				out = append(out, v)
			}
		}
	}
	collect(data)
	switch inner := data["data"].(type) {
	case []any:
		for _, item := range inner {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
	case map[string]any:
		collect(inner)
	}
	return out
}
