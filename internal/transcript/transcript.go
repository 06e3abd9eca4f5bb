// Package transcript collects the phrases and system notes a player
// receives.
package transcript

import (
	"strconv"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a Store.
const DefaultMaxEntries = 50

// Sink receives transcript updates from a player. Implementations must be
// safe for concurrent use.
type Sink interface {
	// UpsertPhrase creates the phrase or revises its text in place.
	UpsertPhrase(phraseID, speaker, text string, isFinal bool)
	// AppendSystemNote records an informational or error note.
	AppendSystemNote(text string, isError bool)
	// MarkPlaying flags the phrase whose audio is playing.
	MarkPlaying(phraseID string, playing bool)
}

// Kind distinguishes phrases from notes.
type Kind int

const (
	KindPhrase Kind = iota
	KindNote
)

// Entry is one transcript line.
type Entry struct {
	ID        string
	Kind      Kind
	Speaker   string
	Text      string
	Final     bool
	Error     bool
	Playing   bool
	Revisions int
	UpdatedAt time.Time
}

// Store keeps the most recent entries in arrival order, evicting the
// oldest once full.
type Store struct {
	mu       sync.RWMutex
	entries  []*Entry
	byID     map[string]*Entry
	max      int
	notes    int
	onChange func()
}

// NewStore creates a store holding at most max entries.
func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Store{
		byID: make(map[string]*Entry),
		max:  max,
	}
}

// OnChange registers fn to run after every update, outside the lock.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Store) changed() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// UpsertPhrase implements Sink.
func (s *Store) UpsertPhrase(phraseID, speaker, text string, isFinal bool) {
	s.mu.Lock()
	if e, ok := s.byID[phraseID]; ok {
		e.Text = text
		e.Final = isFinal
		if speaker != "" {
			e.Speaker = speaker
		}
		e.Revisions++
		e.UpdatedAt = time.Now()
	} else {
		s.appendLocked(&Entry{
			ID:        phraseID,
			Kind:      KindPhrase,
			Speaker:   speaker,
			Text:      text,
			Final:     isFinal,
			UpdatedAt: time.Now(),
		})
	}
	s.mu.Unlock()
	s.changed()
}

// AppendSystemNote implements Sink.
func (s *Store) AppendSystemNote(text string, isError bool) {
	s.mu.Lock()
	s.notes++
	s.appendLocked(&Entry{
		ID:        "note-" + strconv.Itoa(s.notes),
		Kind:      KindNote,
		Text:      text,
		Final:     true,
		Error:     isError,
		UpdatedAt: time.Now(),
	})
	s.mu.Unlock()
	s.changed()
}

// MarkPlaying implements Sink. Marking a phrase clears the mark on any
// other phrase.
func (s *Store) MarkPlaying(phraseID string, playing bool) {
	s.mu.Lock()
	for _, e := range s.entries {
		switch {
		case e.ID == phraseID:
			e.Playing = playing
		case playing:
			e.Playing = false
		}
	}
	s.mu.Unlock()
	s.changed()
}

func (s *Store) appendLocked(e *Entry) {
	s.entries = append(s.entries, e)
	s.byID[e.ID] = e
	for len(s.entries) > s.max {
		delete(s.byID, s.entries[0].ID)
		s.entries[0] = nil
		s.entries = s.entries[1:]
	}
}

// Entries returns copies of the retained entries, oldest first.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
	}
	return out
}

// Len returns the number of retained entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// LatestPhrase returns the newest phrase entry.
func (s *Store) LatestPhrase() (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Kind == KindPhrase {
			return *s.entries[i], true
		}
	}
	return Entry{}, false
}

// Clear drops every entry.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.byID = make(map[string]*Entry)
	s.mu.Unlock()
	s.changed()
}

// Tee fans updates out to several sinks.
type Tee []Sink

// UpsertPhrase implements Sink.
func (t Tee) UpsertPhrase(phraseID, speaker, text string, isFinal bool) {
	for _, s := range t {
		s.UpsertPhrase(phraseID, speaker, text, isFinal)
	}
}

// AppendSystemNote implements Sink.
func (t Tee) AppendSystemNote(text string, isError bool) {
	for _, s := range t {
		s.AppendSystemNote(text, isError)
	}
}

// MarkPlaying implements Sink.
func (t Tee) MarkPlaying(phraseID string, playing bool) {
	for _, s := range t {
		s.MarkPlaying(phraseID, playing)
	}
}
