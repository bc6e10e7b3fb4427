package model

import "time"

// Author is the flattened author block extracted from a tweet node.
type Author struct {
	ID              string `json:"id"`
	ScreenName      string `json:"screenName"`
	Name            string `json:"name"`
	FollowersCount  int    `json:"followersCount"`
	FollowingCount  int    `json:"followingCount"`
	Verified        bool   `json:"verified"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

// Engagement holds the per-tweet counters that are usually present in
// the legacy block. ViewCount comes from a separate node when available.
type Engagement struct {
	ReplyCount    int `json:"replyCount"`
	RetweetCount  int `json:"retweetCount"`
	QuoteCount    int `json:"quoteCount"`
	LikeCount     int `json:"likeCount"`
	BookmarkCount int `json:"bookmarkCount"`
	ViewCount     int `json:"viewCount"`
}

// URLEntity is one expanded link from the tweet entities.
type URLEntity struct {
	DisplayURL  string `json:"displayUrl"`
	ExpandedURL string `json:"expandedUrl"`
	URL         string `json:"url"`
}

// Mention is one user mention from the tweet entities.
type Mention struct {
	ScreenName string `json:"screenName"`
	ID         string `json:"id"`
}

// Media is one media attachment from the tweet entities.
type Media struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	MediaKey    string `json:"mediaKey"`
	DisplayURL  string `json:"displayUrl"`
	ExpandedURL string `json:"expandedUrl"`
	MediaURL    string `json:"mediaUrl"`
}

// Tweet is the sanitized form of a hydrated tweet node.
type Tweet struct {
	ID                string      `json:"id"`
	ConversationID    string      `json:"conversationId,omitempty"`
	CreatedAt         string      `json:"createdAt,omitempty"`
	Text              string      `json:"text"`
	InReplyToStatusID string      `json:"inReplyToStatusId,omitempty"`
	InReplyToUserID   string      `json:"inReplyToUserId,omitempty"`
	QuotedStatusID    string      `json:"quotedStatusId,omitempty"`
	IsQuoteStatus     bool        `json:"isQuoteStatus"`
	Author            Author      `json:"author"`
	Engagement        Engagement  `json:"engagement"`
	URLs              []URLEntity `json:"urls,omitempty"`
	Mentions          []Mention   `json:"mentions,omitempty"`
	Hashtags          []string    `json:"hashtags,omitempty"`
	Media             []Media     `json:"media,omitempty"`
	Language          string      `json:"language,omitempty"`
	Source            string      `json:"source,omitempty"`
}

// Page is one fetched page of a pagination run.
type Page struct {
	PageNumber      int            `json:"pageNumber"`
	Cursor          string         `json:"cursor"`
	RequestedCursor string         `json:"requestedCursor"`
	NextCursor      string         `json:"nextCursor"`
	PageSignature   string         `json:"pageSignature"`
	TweetIDs        []string       `json:"tweetIds"`
	NewTweetIDs     []string       `json:"newTweetIds"`
	Data            map[string]any `json:"data"`
}

// RawDocument is the incrementally persisted result of a pagination run.
type RawDocument struct {
	Username         string         `json:"username"`
	UserID           string         `json:"userId"`
	FetchedAt        string         `json:"fetchedAt"`
	User             map[string]any `json:"user"`
	TweetsAndReplies PageSet        `json:"tweetsAndReplies"`
}

// PageSet groups the collected pages with their count.
type PageSet struct {
	PageCount int    `json:"pageCount"`
	Pages     []Page `json:"pages"`
}

// DiscoveredUser is the flattened form of a user record returned by
// the users lookup endpoint.
type DiscoveredUser struct {
	ID             string
	ScreenName     string
	Name           string
	Description    string
	CreatedAt      string // legacy format, may be absent
	FollowersCount int
	FollowingCount int
}

// ProfileRecord is one row of the processed-profiles table. Handle
// comparisons are case-insensitive everywhere.
type ProfileRecord struct {
	Handle          string
	FirstDiscovered time.Time
	LastUpdated     time.Time
	ExternalRef     string // empty means unknown
	Category        string // empty means unclassified
}

// SourceRelationship is one (handle, discoveredBy) discovery edge.
type SourceRelationship struct {
	Handle        string
	DiscoveredBy  string
	DiscoveryDate time.Time
}
