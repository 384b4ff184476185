package browse

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

// Default caps on how many entries one batch contributes.
const (
	DefaultMaxInitial = 10
	DefaultMaxBatch   = 10
)

// Section names one of the two independent cursors of a session.
type Section string

const (
	SectionInitial       Section = "initial"
	SectionSupplementary Section = "supplementary"
)

// ParseSection validates a section name from a URL.
func ParseSection(s string) (Section, error) {
	switch Section(s) {
	case SectionInitial, SectionSupplementary:
		return Section(s), nil
	}
	return "", fmt.Errorf("unknown section %q", s)
}

// Session is the browsing state for one result view.
type Session struct {
	ID            string
	Initial       *Cursor[string]
	Supplementary *Cursor[string]
}

// NewSession seeds the initial cursor with at most maxInitial entries.
func NewSession(initial []string, maxInitial int) *Session {
	return &Session{
		ID:            uuid.New().String(),
		Initial:       NewCursor(capped(initial, maxInitial)),
		Supplementary: NewCursor[string](nil),
	}
}

// AddSupplementary appends at most maxBatch entries of batch. Earlier
// entries are never replaced.
func (s *Session) AddSupplementary(batch []string, maxBatch int) {
	s.Supplementary.Append(capped(batch, maxBatch)...)
}

// Cursor returns the cursor of the given section.
func (s *Session) Cursor(sec Section) *Cursor[string] {
	if sec == SectionSupplementary {
		return s.Supplementary
	}
	return s.Initial
}

func capped(seq []string, n int) []string {
	if n > 0 && len(seq) > n {
		return seq[:n]
	}
	return seq
}

// ErrSessionNotFound is returned for unknown or evicted sessions.
var ErrSessionNotFound = errors.New("session not found")

// Store keeps recent sessions in memory, evicting the least recently
// used. Sessions do not survive a restart.
type Store struct {
	mu         sync.Mutex
	cache      *lru.Cache
	maxInitial int
	maxBatch   int
}

// NewStore creates a store holding up to size sessions.
func NewStore(size, maxInitial, maxBatch int) (*Store, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	if maxInitial <= 0 {
		maxInitial = DefaultMaxInitial
	}
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Store{cache: cache, maxInitial: maxInitial, maxBatch: maxBatch}, nil
}

// Create stores a new session seeded with the initial batch.
func (st *Store) Create(initial []string) Snapshot {
	s := NewSession(initial, st.maxInitial)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.cache.Add(s.ID, s)
	return s.snapshot()
}

// Get returns a snapshot of a session.
func (st *Store) Get(id string) (Snapshot, error) {
	var snap Snapshot
	err := st.Update(id, func(s *Session) error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

// Update runs fn with exclusive access to the session.
func (st *Store) Update(id string, fn func(*Session) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	v, ok := st.cache.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return fn(v.(*Session))
}

// AppendSupplementary adds one supplementary batch to a session.
func (st *Store) AppendSupplementary(id string, batch []string) (Snapshot, error) {
	var snap Snapshot
	err := st.Update(id, func(s *Session) error {
		s.AddSupplementary(batch, st.maxBatch)
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

// Move advances (forward=true) or retreats one section of a session.
func (st *Store) Move(id string, sec Section, forward bool) (Snapshot, error) {
	var snap Snapshot
	err := st.Update(id, func(s *Session) error {
		c := s.Cursor(sec)
		if forward {
			c.Advance()
		} else {
			c.Retreat()
		}
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cache.Len()
}

// Snapshot is an immutable view of a session, shaped for JSON.
type Snapshot struct {
	ID            string      `json:"id"`
	Initial       SectionView `json:"initial"`
	Supplementary SectionView `json:"supplementary"`
}

// SectionView describes one cursor.
type SectionView struct {
	Images  []string `json:"images"`
	Index   int      `json:"index"`
	Current string   `json:"current,omitempty"`
}

func (s *Session) snapshot() Snapshot {
	return Snapshot{
		ID:            s.ID,
		Initial:       view(s.Initial),
		Supplementary: view(s.Supplementary),
	}
}

func view(c *Cursor[string]) SectionView {
	cur, _ := c.Current()
	images := c.Items()
	if images == nil {
		images = []string{}
	}
	return SectionView{Images: images, Index: c.Index(), Current: cur}
}
