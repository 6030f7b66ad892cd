package feeds

import (
	"strings"
	"sync"
	"time"

	"github.com/richinex/clonr/cache"
	"github.com/richinex/clonr/debounce"
	"github.com/richinex/clonr/internal/dsa"
	"github.com/richinex/clonr/model"
)

// CloneSearch drives the clone feed from a search box. Keystrokes are
// debounced before they reach the feed's query, and loaded clones are
// indexed by name so the current results can be narrowed at once while
// the remote query waits.
type CloneSearch struct {
	feed     *Clones
	deb      *debounce.Debouncer[string]
	onCommit func(name string)
	unsub    func()

	mu    sync.Mutex
	text  string
	index *dsa.NameIndex
}

// NewCloneSearch wires a search box to feed. onCommit, if set, runs after
// a committed term has replaced the feed's query; callers use it to load
// the first page of the new results.
func NewCloneSearch(feed *Clones, delay time.Duration, onCommit func(name string)) *CloneSearch {
	s := &CloneSearch{
		feed:     feed,
		onCommit: onCommit,
		index:    dsa.NewNameIndex(),
		text:     feed.Query().Name,
	}
	s.deb = debounce.New(delay, s.commit)
	s.reindex(feed.Snapshot())
	s.unsub = feed.Subscribe(s.reindex)
	return s
}

// Type records the current contents of the search box.
func (s *CloneSearch) Type(text string) {
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
	s.deb.Set(strings.TrimSpace(text))
}

// Text returns what was last typed.
func (s *CloneSearch) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Flush commits the pending term immediately, as on pressing enter.
func (s *CloneSearch) Flush() bool {
	return s.deb.Flush()
}

// Visible returns the loaded clones whose names match what was typed, in
// feed order.
func (s *CloneSearch) Visible() []model.Clone {
	items := s.feed.Items()

	s.mu.Lock()
	ids := s.index.Match(s.text)
	s.mu.Unlock()

	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	out := make([]model.Clone, 0, len(ids))
	for _, c := range items {
		if keep[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// Close stops pending commits and detaches from the feed.
func (s *CloneSearch) Close() {
	s.deb.Stop()
	s.unsub()
}

func (s *CloneSearch) commit(name string) {
	q := s.feed.Query()
	if q.Name == name {
		return
	}
	q.Name = name
	s.feed.SetQuery(q)
	if s.onCommit != nil {
		s.onCommit(name)
	}
}

func (s *CloneSearch) reindex(snap cache.Snapshot[model.Clone]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Clear()
	for _, c := range snap.Items() {
		s.index.Insert(c.ID, c.Name)
	}
}
