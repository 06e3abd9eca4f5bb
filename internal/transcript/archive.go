package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// maxTracked bounds the per-archive memory of which phrases were written.
const maxTracked = 1024

// Record is one archived line.
type Record struct {
	Time     time.Time `json:"time"`
	Player   string    `json:"player"`
	Language string    `json:"language"`
	PhraseID string    `json:"phraseId,omitempty"`
	Speaker  string    `json:"speaker,omitempty"`
	Text     string    `json:"text"`
	Note     bool      `json:"note,omitempty"`
	Error    bool      `json:"error,omitempty"`
}

// Archive appends final phrases and notes from every player to a JSON
// lines file. Paths ending in .zst are zstd compressed.
type Archive struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	encoder *zstd.Encoder
	enc     *json.Encoder
	written map[string]string
	closed  bool
}

// OpenArchive creates or appends to the archive at path.
func OpenArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	a := &Archive{
		file:    f,
		written: make(map[string]string),
	}

	var w io.Writer = f
	if strings.HasSuffix(path, ".zst") {
		a.encoder, err = zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		w = a.encoder
	}
	a.buf = bufio.NewWriter(w)
	a.enc = json.NewEncoder(a.buf)

	return a, nil
}

func (a *Archive) write(r Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return os.ErrClosed
	}

	if r.PhraseID != "" {
		key := r.Player + "/" + r.PhraseID
		if prev, ok := a.written[key]; ok && prev == r.Text {
			return nil
		}
		if len(a.written) >= maxTracked {
			a.written = make(map[string]string)
		}
		a.written[key] = r.Text
	}

	if err := a.enc.Encode(r); err != nil {
		return err
	}
	return a.buf.Flush()
}

// Close flushes and closes the archive.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error
	if err := a.buf.Flush(); err != nil {
		firstErr = err
	}
	if a.encoder != nil {
		if err := a.encoder.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ForPlayer returns a Sink that archives one player's transcript.
func (a *Archive) ForPlayer(playerID, language string) *PlayerArchive {
	return &PlayerArchive{archive: a, player: playerID, language: language}
}

// PlayerArchive is a per-player view of an Archive.
type PlayerArchive struct {
	archive *Archive
	player  string

	mu       sync.Mutex
	language string
	lastErr  error
}

// SetLanguage changes the language recorded for later entries.
func (p *PlayerArchive) SetLanguage(code string) {
	p.mu.Lock()
	p.language = code
	p.mu.Unlock()
}

// Err returns the last write error.
func (p *PlayerArchive) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *PlayerArchive) record(r Record) {
	p.mu.Lock()
	r.Player = p.player
	r.Language = p.language
	p.mu.Unlock()
	r.Time = time.Now().UTC()

	if err := p.archive.write(r); err != nil {
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
	}
}

// UpsertPhrase archives final phrases. A final phrase revised again is
// written again only if its text changed.
func (p *PlayerArchive) UpsertPhrase(phraseID, speaker, text string, isFinal bool) {
	if !isFinal {
		return
	}
	p.record(Record{PhraseID: phraseID, Speaker: speaker, Text: text})
}

// AppendSystemNote implements Sink.
func (p *PlayerArchive) AppendSystemNote(text string, isError bool) {
	p.record(Record{Text: text, Note: true, Error: isError})
}

// MarkPlaying implements Sink. Playback is not archived.
func (p *PlayerArchive) MarkPlaying(string, bool) {}

// ReadArchive decodes every record in r.
func ReadArchive(r io.Reader, compressed bool) ([]Record, error) {
	if compressed {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	var records []Record
	decoder := json.NewDecoder(r)
	for {
		var rec Record
		if err := decoder.Decode(&rec); err == io.EOF {
			return records, nil
		} else if err != nil {
			return records, fmt.Errorf("decode archive: %w", err)
		}
		records = append(records, rec)
	}
}
