// Package ui provides the terminal front end for caption-router.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/caption-router/internal/audio"
	"github.com/dgnsrekt/caption-router/internal/languages"
	"github.com/dgnsrekt/caption-router/internal/preset"
	"github.com/dgnsrekt/caption-router/internal/supervisor"
	"github.com/dgnsrekt/caption-router/internal/transcript"
	"github.com/muesli/termenv"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied!"
	ellipsis             = "…"
)

// Controller is the part of the supervisor the UI drives.
type Controller interface {
	Subscribe(handler any) func()
	Players() []supervisor.PlayerInfo
	Transcript(id string) ([]transcript.Entry, error)
	LatestPhrase(id string) (transcript.Entry, bool)
	AddPlayer(cfg supervisor.PlayerConfig) (string, error)
	RemovePlayer(id string) bool
	ApplyLanguage(id, code string) error
	ApplyDevice(id, deviceID string) error
	ApplyAudioEnabled(id string, enabled bool) error
	ConnectAll()
	Configs() []supervisor.PlayerConfig
	LoadPreset(configs []supervisor.PlayerConfig) ([]string, error)
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, ctrl Controller) *tea.Program {
	log.Debug("Starting UI", "session", cfg.Session.Code, "mouse", cfg.EnableMouse)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, ctrl), opts...)
}

type (
	// activityMsg is delivered when the bus reported a change.
	activityMsg struct{}
	// refreshMsg asks for a redraw from fresh snapshots.
	refreshMsg     struct{}
	playerErrorMsg struct{ err *supervisor.PlayerError }
	devicesMsg     struct {
		devices []audio.Device
		err     error
	}
	actionDoneMsg struct {
		status string
		err    error
	}
	statusMessageTimeoutMsg struct{}
)

// state is the top-level application state.
type state int

const (
	stateBrowse state = iota
	statePrompt
)

func (s state) String() string {
	return map[state]string{
		stateBrowse: "browsing players",
		statePrompt: "reading input",
	}[s]
}

type promptKind int

const (
	promptNone promptKind = iota
	promptLanguage
	promptSavePreset
	promptLoadPreset
)

// Common stuff we'll need to access in all models.
type commonModel struct {
	cfg    Config
	width  int
	height int
}

// activity carries bus events into the program. Change notifications
// coalesce; errors queue up to a bound and are then dropped.
type activity struct {
	notify chan struct{}
	errs   chan *supervisor.PlayerError
	unsubs []func()
}

func newActivity(ctrl Controller) *activity {
	a := &activity{
		notify: make(chan struct{}, 1),
		errs:   make(chan *supervisor.PlayerError, 16),
	}
	poke := func() {
		select {
		case a.notify <- struct{}{}:
		default:
		}
	}

	a.unsubs = []func(){
		ctrl.Subscribe(func(supervisor.PlayerAddedEvent) { poke() }),
		ctrl.Subscribe(func(supervisor.PlayerRemovedEvent) { poke() }),
		ctrl.Subscribe(func(supervisor.StatusChangedEvent) { poke() }),
		ctrl.Subscribe(func(supervisor.ReconnectScheduledEvent) { poke() }),
		ctrl.Subscribe(func(supervisor.ClipStartedEvent) { poke() }),
		ctrl.Subscribe(func(supervisor.ClipFinishedEvent) { poke() }),
		ctrl.Subscribe(func(supervisor.TranscriptUpdatedEvent) { poke() }),
		ctrl.Subscribe(func(e supervisor.PlayerErrorEvent) {
			select {
			case a.errs <- e.Err:
			default:
			}
		}),
	}
	return a
}

func (a *activity) close() {
	for _, unsub := range a.unsubs {
		unsub()
	}
	a.unsubs = nil
}

// wait blocks until the next bus activity. Exactly one wait is
// outstanding at a time; the handler of its message issues the next.
func (a *activity) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case err := <-a.errs:
			return playerErrorMsg{err}
		case <-a.notify:
			return activityMsg{}
		}
	}
}

type model struct {
	common   *commonModel
	ctrl     Controller
	activity *activity
	state    state
	prompt   promptKind

	players  []supervisor.PlayerInfo
	selected int
	devices  []audio.Device

	// Sub-models
	pager   pagerModel
	spinner spinner.Model
	input   textinput.Model
}

func newModel(cfg Config, ctrl Controller) model {
	if cfg.Catalog == nil {
		cfg.Catalog = languages.Default()
	}
	if cfg.Devices == nil {
		cfg.Devices = audio.StaticDirectory(nil)
	}

	common := &commonModel{cfg: cfg}

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	ti := textinput.New()
	ti.CharLimit = 64
	ti.Prompt = "> "

	return model{
		common:   common,
		ctrl:     ctrl,
		activity: newActivity(ctrl),
		state:    stateBrowse,
		pager:    newPagerModel(common),
		spinner:  sp,
		input:    ti,
		devices:  []audio.Device{{Label: audio.DefaultDeviceLabel}},
	}
}

func (m model) Init() tea.Cmd {
	log.Debug("Init() called", "state", m.state)
	return tea.Batch(
		m.spinner.Tick,
		m.activity.wait(),
		listDevicesCmd(m.common.cfg.Devices),
		func() tea.Msg { return refreshMsg{} },
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Ctrl+C always quits no matter where in the application you are.
		if msg.String() == "ctrl+c" {
			m.activity.close()
			return m, tea.Quit
		}
		if m.state == statePrompt {
			return m.updatePrompt(msg)
		}
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.layout()
		return m, nil

	case activityMsg:
		m.refresh()
		return m, m.activity.wait()

	case refreshMsg:
		m.refresh()
		return m, nil

	case playerErrorMsg:
		log.Debug("Player error", "player", msg.err.PlayerID, "err", msg.err)
		m.refresh()
		cmds = append(cmds, m.activity.wait())
		if msg.err.Severity >= supervisor.SeverityWarning {
			cmds = append(cmds, m.pager.showStatusMessage(msg.err.Error(), true))
		}
		return m, tea.Batch(cmds...)

	case devicesMsg:
		if len(msg.devices) > 0 {
			m.devices = msg.devices
		}
		if msg.err != nil {
			log.Warn("Device listing failed", "err", msg.err)
			return m, m.pager.showStatusMessage("Could not list audio devices", true)
		}
		return m, nil

	case actionDoneMsg:
		m.refresh()
		if msg.err != nil {
			log.Warn("Action failed", "err", msg.err)
			return m, m.pager.showStatusMessage(msg.err.Error(), true)
		}
		if msg.status != "" {
			return m, m.pager.showStatusMessage(msg.status, false)
		}
		return m, nil

	case statusMessageTimeoutMsg:
		m.pager.clearStatusMessage()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	newPagerModel, cmd := m.pager.update(msg)
	m.pager = newPagerModel
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// handleKey runs browse-mode bindings. Unhandled keys scroll the
// transcript.
func (m *model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	cfg := m.common.cfg
	current, hasCurrent := m.current()

	switch msg.String() {
	case "q":
		m.activity.close()
		return tea.Quit, true

	case "ctrl+z":
		return tea.Suspend, true

	case "up", "k":
		if m.selected > 0 {
			m.selected--
			m.refresh()
		}
		return nil, true

	case "down", "j":
		if m.selected < len(m.players)-1 {
			m.selected++
			m.refresh()
		}
		return nil, true

	case "a":
		return addPlayerCmd(m.ctrl, cfg.Defaults, cfg.Catalog), true

	case "x":
		if !hasCurrent {
			return nil, true
		}
		return removePlayerCmd(m.ctrl, current.ID), true

	case "m":
		if !hasCurrent {
			return nil, true
		}
		return setAudioCmd(m.ctrl, current.ID, !current.Config.AudioEnabled), true

	case "D":
		if !hasCurrent {
			return nil, true
		}
		next := nextDevice(m.devices, current.Config.DeviceID)
		return setDeviceCmd(m.ctrl, current.ID, next), true

	case "c":
		if !hasCurrent {
			return nil, true
		}
		return copyLatestCmd(m.ctrl, current.ID), true

	case "R":
		return reconnectAllCmd(m.ctrl), true

	case "L":
		if !hasCurrent {
			return nil, true
		}
		return m.openPrompt(promptLanguage, "language code or name"), true

	case "S", "P":
		if cfg.Presets == nil {
			return m.pager.showStatusMessage("Presets are not configured", true), true
		}
		if msg.String() == "S" {
			return m.openPrompt(promptSavePreset, "preset name"), true
		}
		return m.openPrompt(promptLoadPreset, "preset name"), true

	case "?":
		m.pager.toggleHelp()
		m.layout()
		return nil, true
	}
	return nil, false
}

func (m *model) openPrompt(kind promptKind, placeholder string) tea.Cmd {
	m.state = statePrompt
	m.prompt = kind
	m.input.Reset()
	m.input.Placeholder = placeholder
	m.layout()
	return m.input.Focus()
}

func (m *model) closePrompt() {
	m.state = stateBrowse
	m.prompt = promptNone
	m.input.Blur()
	m.layout()
}

func (m model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closePrompt()
		return m, nil

	case "enter":
		value := strings.TrimSpace(m.input.Value())
		kind := m.prompt
		m.closePrompt()
		if value == "" {
			return m, nil
		}
		return m, m.submitPrompt(kind, value)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) submitPrompt(kind promptKind, value string) tea.Cmd {
	cfg := m.common.cfg

	switch kind {
	case promptLanguage:
		current, ok := m.current()
		if !ok {
			return nil
		}
		code, err := resolveLanguage(cfg.Catalog, value)
		if err != nil {
			return m.pager.showStatusMessage(err.Error(), true)
		}
		return setLanguageCmd(m.ctrl, current.ID, code, cfg.Catalog.NameOf(code))

	case promptSavePreset:
		p := preset.Preset{Session: cfg.Session, Players: m.ctrl.Configs()}
		return savePresetCmd(cfg.Presets, value, p)

	case promptLoadPreset:
		return loadPresetCmd(m.ctrl, cfg.Presets, value, cfg.Session.Code)
	}
	return nil
}

// current returns the selected player.
func (m model) current() (supervisor.PlayerInfo, bool) {
	if m.selected < 0 || m.selected >= len(m.players) {
		return supervisor.PlayerInfo{}, false
	}
	return m.players[m.selected], true
}

// refresh reloads player snapshots and the selected transcript.
func (m *model) refresh() {
	m.players = m.ctrl.Players()
	if m.selected >= len(m.players) {
		m.selected = max(0, len(m.players)-1)
	}
	m.layout()

	current, ok := m.current()
	if !ok {
		m.pager.setEntries("", nil)
		return
	}
	entries, err := m.ctrl.Transcript(current.ID)
	if err != nil {
		log.Debug("Transcript unavailable", "player", current.ID, "err", err)
		return
	}
	m.pager.setEntries(current.ID, entries)
}

func (m model) listHeight() int {
	return 2 + max(1, len(m.players))
}

// layout gives the pager whatever the player list and prompt leave.
func (m *model) layout() {
	h := m.common.height - m.listHeight()
	if m.state == statePrompt {
		h--
	}
	m.pager.setSize(m.common.width, max(0, h))
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.listView())
	if m.state == statePrompt {
		b.WriteString(promptStyle(m.promptLabel()) + m.input.View() + "\n")
	}
	b.WriteString(m.pager.View())
	return b.String()
}

func (m model) promptLabel() string {
	switch m.prompt {
	case promptLanguage:
		return "Language "
	case promptSavePreset:
		return "Save preset "
	case promptLoadPreset:
		return "Load preset "
	}
	return ""
}

func (m model) listView() string {
	var b strings.Builder
	cfg := m.common.cfg

	fmt.Fprintf(&b, "%s%s\n",
		headerStyle(" Session "+cfg.Session.Code),
		subtleStyle(fmt.Sprintf("  %d players", len(m.players))),
	)

	if len(m.players) == 0 {
		b.WriteString(subtleStyle("  No players. Press a to add one.") + "\n")
	}
	spin := m.spinner.View()
	for i, p := range m.players {
		name := cfg.Catalog.NameOf(p.Config.Language)
		b.WriteString(playerLine(p, name, m.devices, spin, i == m.selected, m.common.width) + "\n")
	}

	b.WriteString("\n")
	return b.String()
}

// COMMANDS

func listDevicesCmd(dir audio.Directory) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		devices, err := dir.List(ctx)
		return devicesMsg{devices: devices, err: err}
	}
}

func addPlayerCmd(ctrl Controller, cfg supervisor.PlayerConfig, catalog *languages.Catalog) tea.Cmd {
	return func() tea.Msg {
		id, err := ctrl.AddPlayer(cfg)
		if err != nil {
			return actionDoneMsg{err: fmt.Errorf("add player: %w", err)}
		}
		return actionDoneMsg{status: fmt.Sprintf("Added %s (%s)", id, catalog.NameOf(cfg.Language))}
	}
}

func removePlayerCmd(ctrl Controller, id string) tea.Cmd {
	return func() tea.Msg {
		if !ctrl.RemovePlayer(id) {
			return actionDoneMsg{}
		}
		return actionDoneMsg{status: "Removed " + id}
	}
}

func setAudioCmd(ctrl Controller, id string, enabled bool) tea.Cmd {
	return func() tea.Msg {
		if err := ctrl.ApplyAudioEnabled(id, enabled); err != nil {
			return actionDoneMsg{err: err}
		}
		if enabled {
			return actionDoneMsg{status: "Audio enabled"}
		}
		return actionDoneMsg{status: "Audio disabled"}
	}
}

func setDeviceCmd(ctrl Controller, id string, device audio.Device) tea.Cmd {
	return func() tea.Msg {
		if err := ctrl.ApplyDevice(id, device.ID); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "Output: " + device.Label}
	}
}

func setLanguageCmd(ctrl Controller, id, code, name string) tea.Cmd {
	return func() tea.Msg {
		if err := ctrl.ApplyLanguage(id, code); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "Language: " + name}
	}
}

func reconnectAllCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctrl.ConnectAll()
		return actionDoneMsg{status: "Reconnecting"}
	}
}

func copyLatestCmd(ctrl Controller, id string) tea.Cmd {
	return func() tea.Msg {
		entry, ok := ctrl.LatestPhrase(id)
		if !ok {
			return actionDoneMsg{status: "Nothing to copy yet"}
		}
		// Copy using OSC 52
		termenv.Copy(entry.Text)
		// Copy using native system clipboard
		_ = clipboard.WriteAll(entry.Text)
		return actionDoneMsg{status: "Copied latest phrase"}
	}
}

func savePresetCmd(store *preset.Store, name string, p preset.Preset) tea.Cmd {
	return func() tea.Msg {
		if err := store.Save(name, p); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: fmt.Sprintf("Preset %q saved", name)}
	}
}

func loadPresetCmd(ctrl Controller, store *preset.Store, name, code string) tea.Cmd {
	return func() tea.Msg {
		p, err := store.Get(name)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		ids, err := ctrl.LoadPreset(p.Players)
		if err != nil {
			return actionDoneMsg{err: fmt.Errorf("load preset: %w", err)}
		}
		status := fmt.Sprintf("Preset %q loaded, %d players", name, len(ids))
		if !p.Matches(code) {
			status += fmt.Sprintf(" (saved for %s)", p.Session.Code)
		}
		return actionDoneMsg{status: status}
	}
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}

// ETC

// resolveLanguage accepts a catalog code or the best fuzzy match for a
// name.
func resolveLanguage(catalog *languages.Catalog, input string) (string, error) {
	input = strings.TrimSpace(input)
	if catalog.Has(input) {
		return input, nil
	}
	if lower := strings.ToLower(input); catalog.Has(lower) {
		return lower, nil
	}
	matches := catalog.Search(input)
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %q", languages.ErrUnknownLanguage, input)
	}
	return matches[0].Code, nil
}

// nextDevice cycles through devices starting after the one with id.
func nextDevice(devices []audio.Device, id string) audio.Device {
	if len(devices) == 0 {
		return audio.Device{Label: audio.DefaultDeviceLabel}
	}
	for i, d := range devices {
		if d.ID == id {
			return devices[(i+1)%len(devices)]
		}
	}
	return devices[0]
}

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
