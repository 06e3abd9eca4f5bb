package ui

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dgnsrekt/caption-router/internal/audio"
	"github.com/dgnsrekt/caption-router/internal/connection"
	"github.com/dgnsrekt/caption-router/internal/languages"
	"github.com/dgnsrekt/caption-router/internal/preset"
	"github.com/dgnsrekt/caption-router/internal/session"
	"github.com/dgnsrekt/caption-router/internal/supervisor"
)

var testCatalog = languages.New(map[string]string{
	"en": "English",
	"es": "Spanish",
	"de": "German",
	"fr": "French",
})

func newTestSupervisor(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	sup, err := supervisor.New(supervisor.Options{
		Credentials: session.Credentials{Code: "ABCD-1234"},
		Transport:   connection.NewFakeTransport(),
		Connection: connection.Config{
			URL:               "ws://test.invalid/attend",
			HandshakeTimeout:  time.Hour,
			HeartbeatInterval: time.Hour,
			Backoff:           connection.Backoff{Base: time.Hour, Factor: 1, Max: time.Hour},
		},
		Catalog: testCatalog,
	})
	if err != nil {
		t.Fatalf("supervisor.New failed: %v", err)
	}
	t.Cleanup(sup.Close)
	return sup
}

func newTestModel(t *testing.T, presets *preset.Store) (model, *supervisor.Supervisor) {
	t.Helper()
	sup := newTestSupervisor(t)
	m := newModel(Config{
		Session:  session.Credentials{Code: "ABCD-1234"},
		Catalog:  testCatalog,
		Devices:  audio.StaticDirectory{{ID: "speakers", Label: "Speakers"}, {ID: "headset", Label: "Headset"}},
		Presets:  presets,
		Defaults: supervisor.PlayerConfig{Language: "es"},
	}, sup)
	t.Cleanup(m.activity.close)

	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	return m, sup
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	tm, _ := m.Update(msg)
	return tm.(model)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the command it returns, feeding the result
// back into the model. Prompt keys return cursor blink and status timer
// commands, which are not run.
func press(t *testing.T, m model, k string) model {
	t.Helper()
	tm, cmd := m.Update(key(k))
	m = tm.(model)
	if k == "L" || k == "S" || k == "P" {
		return m
	}
	if cmd != nil {
		if msg := cmd(); msg != nil {
			if _, ok := msg.(actionDoneMsg); ok {
				m = update(t, m, msg)
			}
		}
	}
	return m
}

func typeText(t *testing.T, m model, text string) model {
	t.Helper()
	tm, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return tm.(model)
}

func TestAddAndRemovePlayer(t *testing.T) {
	m, sup := newTestModel(t, nil)

	m = press(t, m, "a")
	if len(m.players) != 1 {
		t.Fatalf("Expected 1 player, got %d", len(m.players))
	}
	if m.players[0].Config.Language != "es" {
		t.Errorf("Expected default language es, got %s", m.players[0].Config.Language)
	}
	if !strings.Contains(m.pager.statusMessage, "Spanish") {
		t.Errorf("Expected status to name the language, got %q", m.pager.statusMessage)
	}

	m = press(t, m, "x")
	if len(m.players) != 0 || sup.Len() != 0 {
		t.Errorf("Expected player removed, got %d in view and %d in supervisor", len(m.players), sup.Len())
	}
}

func TestSelectionMovesBetweenPlayers(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m = press(t, m, "a")
	m = press(t, m, "a")

	if m.selected != 0 {
		t.Fatalf("Expected first player selected, got %d", m.selected)
	}
	m = press(t, m, "j")
	if m.selected != 1 {
		t.Errorf("Expected second player selected, got %d", m.selected)
	}
	m = press(t, m, "j")
	if m.selected != 1 {
		t.Errorf("Expected selection to stop at the last player, got %d", m.selected)
	}
	m = press(t, m, "k")
	if m.selected != 0 {
		t.Errorf("Expected first player selected again, got %d", m.selected)
	}
}

func TestToggleAudio(t *testing.T) {
	m, sup := newTestModel(t, nil)
	m = press(t, m, "a")

	m = press(t, m, "m")
	info, err := sup.Player(m.players[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if !info.Config.AudioEnabled {
		t.Error("Expected audio enabled after m")
	}

	m = press(t, m, "m")
	info, _ = sup.Player(m.players[0].ID)
	if info.Config.AudioEnabled {
		t.Error("Expected audio disabled after second m")
	}
	if m.pager.statusMessage != "Audio disabled" {
		t.Errorf("Expected status 'Audio disabled', got %q", m.pager.statusMessage)
	}
}

func TestCycleDevice(t *testing.T) {
	m, sup := newTestModel(t, nil)
	m = update(t, m, listDevicesCmd(m.common.cfg.Devices)())
	m = press(t, m, "a")

	want := []string{"speakers", "headset", ""}
	for _, id := range want {
		m = press(t, m, "D")
		info, _ := sup.Player(m.players[0].ID)
		if info.Config.DeviceID != id {
			t.Errorf("Expected device %q, got %q", id, info.Config.DeviceID)
		}
	}
}

func TestLanguagePrompt(t *testing.T) {
	m, sup := newTestModel(t, nil)
	m = press(t, m, "a")

	m = press(t, m, "L")
	if m.state != statePrompt || m.prompt != promptLanguage {
		t.Fatalf("Expected language prompt, got state %s", m.state)
	}

	m = typeText(t, m, "German")
	m = press(t, m, "enter")
	if m.state != stateBrowse {
		t.Errorf("Expected prompt closed, got %s", m.state)
	}

	info, _ := sup.Player(m.players[0].ID)
	if info.Config.Language != "de" {
		t.Errorf("Expected language de, got %s", info.Config.Language)
	}
}

func TestPromptEscapeCancels(t *testing.T) {
	m, sup := newTestModel(t, nil)
	m = press(t, m, "a")

	m = press(t, m, "L")
	m = typeText(t, m, "fr")
	m = press(t, m, "esc")

	if m.state != stateBrowse {
		t.Errorf("Expected browse state, got %s", m.state)
	}
	info, _ := sup.Player(m.players[0].ID)
	if info.Config.Language != "es" {
		t.Errorf("Expected language unchanged, got %s", info.Config.Language)
	}
}

func TestPresetSaveAndLoad(t *testing.T) {
	store := preset.NewStore(filepath.Join(t.TempDir(), "presets.yml"))
	m, sup := newTestModel(t, store)
	m = press(t, m, "a")
	m = press(t, m, "m")

	m = press(t, m, "S")
	m = typeText(t, m, "lobby")
	m = press(t, m, "enter")

	p, err := store.Get("lobby")
	if err != nil {
		t.Fatalf("Expected preset saved: %v", err)
	}
	if p.Session.Code != "ABCD-1234" || len(p.Players) != 1 || !p.Players[0].AudioEnabled {
		t.Errorf("Unexpected preset %+v", p)
	}

	// Change the layout, then load the preset back.
	m = press(t, m, "a")
	m = press(t, m, "a")
	if sup.Len() != 3 {
		t.Fatalf("Expected 3 players, got %d", sup.Len())
	}

	m = press(t, m, "P")
	m = typeText(t, m, "lobby")
	m = press(t, m, "enter")

	if sup.Len() != 1 || len(m.players) != 1 {
		t.Errorf("Expected preset layout with 1 player, got %d", sup.Len())
	}
	if !strings.Contains(m.pager.statusMessage, "loaded") {
		t.Errorf("Expected load status, got %q", m.pager.statusMessage)
	}
}

func TestPresetKeysWithoutStore(t *testing.T) {
	m, _ := newTestModel(t, nil)
	m = press(t, m, "S")

	if m.state != stateBrowse {
		t.Errorf("Expected no prompt without a preset store, got %s", m.state)
	}
	if !m.pager.statusIsError {
		t.Error("Expected an error status message")
	}
}

func TestLoadUnknownPreset(t *testing.T) {
	store := preset.NewStore(filepath.Join(t.TempDir(), "presets.yml"))
	m, _ := newTestModel(t, store)

	m = press(t, m, "P")
	m = typeText(t, m, "missing")
	m = press(t, m, "enter")

	if !m.pager.statusIsError || !strings.Contains(m.pager.statusMessage, "not found") {
		t.Errorf("Expected not found error, got %q", m.pager.statusMessage)
	}
}

func TestActivityFromBus(t *testing.T) {
	sup := newTestSupervisor(t)
	a := newActivity(sup)
	defer a.close()

	got := make(chan tea.Msg, 1)
	go func() { got <- a.wait()() }()

	if _, err := sup.AddPlayer(supervisor.PlayerConfig{Language: "en"}); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-got:
		if _, ok := msg.(activityMsg); !ok {
			t.Errorf("Expected activityMsg, got %T", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected bus activity after AddPlayer")
	}
}

func TestView(t *testing.T) {
	m, _ := newTestModel(t, nil)

	if view := m.View(); !strings.Contains(view, "No players") {
		t.Errorf("Expected empty list hint, got:\n%s", view)
	}

	m = press(t, m, "a")
	view := m.View()
	for _, want := range []string{"ABCD-1234", m.players[0].ID, "Spanish (es)", "audio off"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}

	m = press(t, m, "?")
	if !strings.Contains(m.View(), "change language") {
		t.Error("Expected help to list key bindings")
	}
}

func TestResolveLanguage(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"es", "es", false},
		{"ES", "es", false},
		{"german", "de", false},
		{"Fren", "fr", false},
		{"qqqq", "", true},
	}

	for _, tt := range tests {
		got, err := resolveLanguage(testCatalog, tt.input)
		if tt.wantErr {
			if !errors.Is(err, languages.ErrUnknownLanguage) {
				t.Errorf("resolveLanguage(%q): expected ErrUnknownLanguage, got %v", tt.input, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("resolveLanguage(%q): expected %s, got %s (%v)", tt.input, tt.want, got, err)
		}
	}
}

func TestNextDevice(t *testing.T) {
	devices := []audio.Device{{Label: audio.DefaultDeviceLabel}, {ID: "a", Label: "A"}, {ID: "b", Label: "B"}}

	tests := []struct {
		current string
		want    string
	}{
		{"", "a"},
		{"a", "b"},
		{"b", ""},
		{"gone", ""},
	}
	for _, tt := range tests {
		if got := nextDevice(devices, tt.current); got.ID != tt.want {
			t.Errorf("nextDevice(%q): expected %q, got %q", tt.current, tt.want, got.ID)
		}
	}

	if got := nextDevice(nil, "x"); got.ID != "" {
		t.Errorf("Expected default device for an empty list, got %q", got.ID)
	}
}
