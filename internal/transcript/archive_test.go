package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestArchive(t *testing.T) {
	tests := []struct {
		name string
		file string
	}{
		{name: "plain", file: "transcript.jsonl"},
		{name: "zstd", file: "transcript.jsonl.zst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", tt.file)
			a, err := OpenArchive(path)
			if err != nil {
				t.Fatalf("OpenArchive failed: %v", err)
			}

			p := a.ForPlayer("player-1", "es")
			p.UpsertPhrase("p1", "Ana", "Hola", false)
			p.UpsertPhrase("p1", "Ana", "Hola a todos", true)
			p.UpsertPhrase("p1", "Ana", "Hola a todos", true)
			p.SetLanguage("fr")
			p.AppendSystemNote("Language changed to French (FR)", false)
			p.MarkPlaying("p1", true)

			if err := a.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}
			if err := a.Close(); err != nil {
				t.Errorf("Second Close failed: %v", err)
			}

			// Writes after close are reported, not panics.
			p.AppendSystemNote("late", false)
			if p.Err() == nil {
				t.Error("Expected error for write after close")
			}

			f, err := os.Open(path)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer f.Close()

			records, err := ReadArchive(f, strings.HasSuffix(path, ".zst"))
			if err != nil {
				t.Fatalf("ReadArchive failed: %v", err)
			}
			if len(records) != 2 {
				t.Fatalf("Expected 2 records, got %d: %+v", len(records), records)
			}
			if records[0].Text != "Hola a todos" || records[0].Language != "es" || records[0].Player != "player-1" {
				t.Errorf("Unexpected phrase record: %+v", records[0])
			}
			if !records[1].Note || records[1].Language != "fr" {
				t.Errorf("Unexpected note record: %+v", records[1])
			}
		})
	}
}
