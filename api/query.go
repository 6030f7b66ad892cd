package api

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Page selects one offset/limit window of a list.
type Page struct {
	Offset int
	Limit  int
}

func (p Page) apply(v url.Values) {
	v.Set("offset", strconv.Itoa(p.Offset))
	v.Set("limit", strconv.Itoa(p.Limit))
}

// SortOrder orders clone search results.
type SortOrder string

// Supported clone sort orders.
const (
	SortTop          SortOrder = "top"
	SortTrending     SortOrder = "trending"
	SortNewest       SortOrder = "newest"
	SortOldest       SortOrder = "oldest"
	SortAlphabetical SortOrder = "alphabetical"
	SortSimilarity   SortOrder = "similarity"
)

var sortOrders = []SortOrder{SortTop, SortTrending, SortNewest, SortOldest, SortAlphabetical, SortSimilarity}

// ParseSortOrder validates a sort order string. Empty means SortTop.
func ParseSortOrder(s string) (SortOrder, error) {
	if s == "" {
		return SortTop, nil
	}
	o := SortOrder(strings.ToLower(s))
	if !slices.Contains(sortOrders, o) {
		return "", fmt.Errorf("unknown sort order: %q", s)
	}
	return o, nil
}

// CloneQuery filters clone search.
type CloneQuery struct {
	Tags    []string
	Name    string
	Sort    SortOrder
	Similar string
}

// Values encodes the filters. Tags are sorted so that equal filter sets
// produce equal encodings.
func (q CloneQuery) Values() url.Values {
	v := url.Values{}
	tags := slices.Clone(q.Tags)
	slices.Sort(tags)
	for _, t := range slices.Compact(tags) {
		v.Add("tags", t)
	}
	if q.Name != "" {
		v.Set("name", q.Name)
	}
	sort := q.Sort
	if sort == "" {
		sort = SortTop
	}
	v.Set("sort", string(sort))
	if q.Similar != "" {
		v.Set("similar", q.Similar)
	}
	return v
}

// SidebarQuery filters the sidebar conversation list.
// ConvoLimit caps how many conversations per clone are summarized.
type SidebarQuery struct {
	Name       string
	ConvoLimit int
}

// Values encodes the filters.
func (q SidebarQuery) Values() url.Values {
	v := url.Values{}
	if q.Name != "" {
		v.Set("name", q.Name)
	}
	if q.ConvoLimit > 0 {
		v.Set("convo_limit", strconv.Itoa(q.ConvoLimit))
	}
	return v
}

// ConversationQuery lists a user's conversations with one clone.
type ConversationQuery struct {
	CloneID string
}

// Values encodes the filters.
func (q ConversationQuery) Values() url.Values {
	v := url.Values{}
	if q.CloneID != "" {
		v.Set("clone_id", q.CloneID)
	}
	return v
}

// MessageQuery lists messages in one conversation.
type MessageQuery struct {
	ConversationID string
	IsActive       bool
	IsMain         bool
}

// MainThread returns the query for the active main branch of a conversation,
// which is what the chat screen shows.
func MainThread(conversationID string) MessageQuery {
	return MessageQuery{ConversationID: conversationID, IsActive: true, IsMain: true}
}

// Values encodes the filters. The conversation id is part of the path and
// is included here only so that it contributes to cache identity.
func (q MessageQuery) Values() url.Values {
	v := url.Values{}
	v.Set("conversation_id", q.ConversationID)
	v.Set("is_active", strconv.FormatBool(q.IsActive))
	v.Set("is_main", strconv.FormatBool(q.IsMain))
	return v
}
