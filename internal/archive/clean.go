package archive

import (
	"sort"
	"strconv"
	"time"

	"driftnet/internal/model"
)

// MinimalAuthor is the author slice kept in the clean output.
type MinimalAuthor struct {
	ID         string `json:"id"`
	ScreenName string `json:"screenName"`
	Name       string `json:"name,omitempty"`
}

// MinimalTweet is a tweet reduced to what sentiment and context
// analysis needs.
type MinimalTweet struct {
	ID                string            `json:"id"`
	CreatedAt         string            `json:"createdAt,omitempty"`
	Text              string            `json:"text"`
	ConversationID    string            `json:"conversationId,omitempty"`
	InReplyToStatusID string            `json:"inReplyToStatusId,omitempty"`
	InReplyToUserID   string            `json:"inReplyToUserId,omitempty"`
	QuotedStatusID    string            `json:"quotedStatusId,omitempty"`
	IsQuoteStatus     bool              `json:"isQuoteStatus"`
	Author            MinimalAuthor     `json:"author"`
	Engagement        model.Engagement  `json:"engagement"`
	URLs              []model.URLEntity `json:"urls,omitempty"`
}

// ThreadNode is a minimal tweet with its replies attached.
type ThreadNode struct {
	MinimalTweet
	OrphanReply bool          `json:"orphanReply,omitempty"`
	Replies     []*ThreadNode `json:"replies"`
}

// SlimAuthor and SlimNode strip the thread view further for prompt
// sized outputs.
type SlimAuthor struct {
	ID         string `json:"id"`
	ScreenName string `json:"screenName"`
}

type SlimNode struct {
	ID                string      `json:"id"`
	CreatedAt         string      `json:"createdAt,omitempty"`
	Text              string      `json:"text"`
	ConversationID    string      `json:"conversationId,omitempty"`
	InReplyToStatusID string      `json:"inReplyToStatusId,omitempty"`
	QuotedStatusID    string      `json:"quotedStatusId,omitempty"`
	Author            SlimAuthor  `json:"author"`
	Replies           []*SlimNode `json:"replies,omitempty"`
}

// Breakdown counts tweet kinds in the clean output.
type Breakdown struct {
	Originals int `json:"originals"`
	Replies   int `json:"replies"`
	Quotes    int `json:"quotes"`
}

// EngagementTotals sums the counters over every tweet in the run.
type EngagementTotals struct {
	ReplyCountTotal    int `json:"replyCountTotal"`
	RetweetCountTotal  int `json:"retweetCountTotal"`
	QuoteCountTotal    int `json:"quoteCountTotal"`
	LikeCountTotal     int `json:"likeCountTotal"`
	BookmarkCountTotal int `json:"bookmarkCountTotal"`
	ViewCountTotal     int `json:"viewCountTotal"`
}

// Summary describes one run of pagination plus backfill.
type Summary struct {
	PagesFetched         int              `json:"pagesFetched"`
	TweetsFromPagination int              `json:"tweetsFromPagination"`
	MissingFetched       int              `json:"missingFetched"`
	TotalTweets          int              `json:"totalTweets"`
	MissingIDs           []string         `json:"missingIds"`
	TweetBreakdown       Breakdown        `json:"tweetBreakdown"`
	EngagementTotals     EngagementTotals `json:"engagementTotals"`
	OrphanReplies        []string         `json:"orphanReplies"`
}

// CleanDocument is the analysis-friendly output of a run.
type CleanDocument struct {
	Username   string         `json:"username"`
	UserID     string         `json:"userId"`
	FetchedAt  string         `json:"fetchedAt"`
	RawFile    string         `json:"rawFile"`
	Summary    Summary        `json:"summary"`
	TweetsFlat []MinimalTweet `json:"tweetsFlat"`
	Threads    []*ThreadNode  `json:"threads"`
}

// SlimDocument keeps the summary but reduces threads to the bare
// conversational structure.
type SlimDocument struct {
	Username  string      `json:"username"`
	UserID    string      `json:"userId"`
	FetchedAt string      `json:"fetchedAt"`
	RawFile   string      `json:"rawFile"`
	Summary   Summary     `json:"summary"`
	Threads   []*SlimNode `json:"threads"`
}

// sortKey orders tweets chronologically: numeric snowflake ids order
// themselves, otherwise the parsed creation time stands in.
func sortKey(id, createdAt string) int64 {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	if t, err := time.Parse("Mon Jan 02 15:04:05 -0700 2006", createdAt); err == nil {
		return t.Unix()
	}
	return 0
}

func minimalize(t model.Tweet) MinimalTweet {
	return MinimalTweet{
		ID:                t.ID,
		CreatedAt:         t.CreatedAt,
		Text:              t.Text,
		ConversationID:    t.ConversationID,
		InReplyToStatusID: t.InReplyToStatusID,
		InReplyToUserID:   t.InReplyToUserID,
		QuotedStatusID:    t.QuotedStatusID,
		IsQuoteStatus:     t.IsQuoteStatus,
		Author: MinimalAuthor{
			ID:         t.Author.ID,
			ScreenName: t.Author.ScreenName,
			Name:       t.Author.Name,
		},
		Engagement: t.Engagement,
		URLs:       t.URLs,
	}
}

// BuildThreads nests replies under their parents. Roots sort newest
// first, replies within a thread oldest first. A reply whose parent
// is not in the set stays a root, flagged as an orphan.
func BuildThreads(tweets []MinimalTweet) ([]*ThreadNode, []string) {
	byID := map[string]*ThreadNode{}
	for _, t := range tweets {
		if t.ID == "" {
			continue
		}
		byID[t.ID] = &ThreadNode{MinimalTweet: t, Replies: []*ThreadNode{}}
	}

	var roots []*ThreadNode
	var orphans []string
	for _, t := range tweets {
		node, ok := byID[t.ID]
		if !ok {
			continue
		}
		parent := byID[t.InReplyToStatusID]
		if t.InReplyToStatusID != "" && parent != nil && parent != node {
			parent.Replies = append(parent.Replies, node)
			continue
		}
		if t.InReplyToStatusID != "" {
			node.OrphanReply = true
			orphans = append(orphans, t.ID)
		}
		roots = append(roots, node)
	}

	var sortReplies func(n *ThreadNode)
	sortReplies = func(n *ThreadNode) {
		sort.SliceStable(n.Replies, func(i, j int) bool {
			return sortKey(n.Replies[i].ID, n.Replies[i].CreatedAt) < sortKey(n.Replies[j].ID, n.Replies[j].CreatedAt)
		})
		for _, r := range n.Replies {
			sortReplies(r)
		}
	}
	for _, r := range roots {
		sortReplies(r)
	}
	sort.SliceStable(roots, func(i, j int) bool {
		return sortKey(roots[i].ID, roots[i].CreatedAt) > sortKey(roots[j].ID, roots[j].CreatedAt)
	})
	return roots, orphans
}

// AssembleClean merges the hydrated and backfilled tweets and builds
// the clean document.
func AssembleClean(username, userID, fetchedAt, rawFile string, pages []model.Page, hydrated, missingFetched map[string]model.Tweet) CleanDocument {
	merged := make(map[string]model.Tweet, len(hydrated)+len(missingFetched))
	for id, t := range hydrated {
		merged[id] = t
	}
	for id, t := range missingFetched {
		merged[id] = t
	}

	tweets := make([]model.Tweet, 0, len(merged))
	for _, t := range merged {
		tweets = append(tweets, t)
	}
	sort.SliceStable(tweets, func(i, j int) bool {
		return sortKey(tweets[i].ID, tweets[i].CreatedAt) > sortKey(tweets[j].ID, tweets[j].CreatedAt)
	})

	minimal := make([]MinimalTweet, 0, len(tweets))
	var totals EngagementTotals
	var breakdown Breakdown
	for _, t := range tweets {
		m := minimalize(t)
		minimal = append(minimal, m)
		totals.ReplyCountTotal += t.Engagement.ReplyCount
		totals.RetweetCountTotal += t.Engagement.RetweetCount
		totals.QuoteCountTotal += t.Engagement.QuoteCount
		totals.LikeCountTotal += t.Engagement.LikeCount
		totals.BookmarkCountTotal += t.Engagement.BookmarkCount
		totals.ViewCountTotal += t.Engagement.ViewCount
		switch {
		case m.InReplyToStatusID != "":
			breakdown.Replies++
		case m.IsQuoteStatus:
			breakdown.Quotes++
		default:
			breakdown.Originals++
		}
	}

	threads, orphans := BuildThreads(minimal)

	missingIDs := make([]string, 0, len(missingFetched))
	for id := range missingFetched {
		missingIDs = append(missingIDs, id)
	}
	sort.Strings(missingIDs)

	return CleanDocument{
		Username:  username,
		UserID:    userID,
		FetchedAt: fetchedAt,
		RawFile:   rawFile,
		Summary: Summary{
			PagesFetched:         len(pages),
			TweetsFromPagination: len(hydrated),
			MissingFetched:       len(missingFetched),
			TotalTweets:          len(tweets),
			MissingIDs:           missingIDs,
			TweetBreakdown:       breakdown,
			EngagementTotals:     totals,
			OrphanReplies:        orphans,
		},
		TweetsFlat: minimal,
		Threads:    threads,
	}
}

// AssembleSlim strips the clean document's threads down to ids, text
// and conversational links.
func AssembleSlim(clean CleanDocument) SlimDocument {
	slim := make([]*SlimNode, 0, len(clean.Threads))
	for _, t := range clean.Threads {
		slim = append(slim, stripForSlim(t))
	}
	return SlimDocument{
		Username:  clean.Username,
		UserID:    clean.UserID,
		FetchedAt: clean.FetchedAt,
		RawFile:   clean.RawFile,
		Summary:   clean.Summary,
		Threads:   slim,
	}
}

func stripForSlim(n *ThreadNode) *SlimNode {
	out := &SlimNode{
		ID:                n.ID,
		CreatedAt:         n.CreatedAt,
		Text:              n.Text,
		ConversationID:    n.ConversationID,
		InReplyToStatusID: n.InReplyToStatusID,
		QuotedStatusID:    n.QuotedStatusID,
		Author:            SlimAuthor{ID: n.Author.ID, ScreenName: n.Author.ScreenName},
	}
	for _, r := range n.Replies {
		out.Replies = append(out.Replies, stripForSlim(r))
	}
	return out
}

// WriteClean writes both derived documents next to the raw file.
func WriteClean(paths Paths, clean CleanDocument) error {
	if err := writeJSON(paths.Clean, clean); err != nil {
		return err
	}
	return writeJSON(paths.Slim, AssembleSlim(clean))
}
