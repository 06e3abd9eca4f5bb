package ui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dgnsrekt/caption-router/internal/transcript"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
)

const statusBarHeight = 1

// pagerModel shows the selected player's transcript above a status bar.
type pagerModel struct {
	common   *commonModel
	viewport viewport.Model
	showHelp bool

	statusMessage      string
	statusIsError      bool
	statusMessageTimer *time.Timer

	// Entries of the player being shown, kept to re-wrap on resize.
	playerID string
	entries  []transcript.Entry
}

func newPagerModel(common *commonModel) pagerModel {
	vp := viewport.New(0, 0)
	vp.YPosition = 0
	return pagerModel{
		common:   common,
		viewport: vp,
	}
}

// setSize sizes the viewport into the space left below the player list.
func (m *pagerModel) setSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = max(0, h-statusBarHeight)

	if m.showHelp {
		m.viewport.Height = max(0, m.viewport.Height-strings.Count(m.helpView(), "\n")-1)
	}
	m.render(false)
}

// setEntries replaces the transcript. The view keeps following new lines
// while it is scrolled to the bottom.
func (m *pagerModel) setEntries(playerID string, entries []transcript.Entry) {
	follow := m.viewport.AtBottom() || playerID != m.playerID
	m.playerID = playerID
	m.entries = entries
	m.render(follow)
}

func (m *pagerModel) render(follow bool) {
	m.viewport.SetContent(renderTranscript(m.entries, m.viewport.Width))
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m *pagerModel) toggleHelp() {
	m.showHelp = !m.showHelp
}

// showStatusMessage shows msg in the status bar until the timeout.
func (m *pagerModel) showStatusMessage(msg string, isError bool) tea.Cmd {
	m.statusMessage = msg
	m.statusIsError = isError
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)
	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

func (m *pagerModel) clearStatusMessage() {
	m.statusMessage = ""
	m.statusIsError = false
}

func (m pagerModel) update(msg tea.Msg) (pagerModel, tea.Cmd) {
	var cmd tea.Cmd

	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "home", "g":
			m.viewport.GotoTop()
			return m, nil
		case "end", "G":
			m.viewport.GotoBottom()
			return m, nil
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m pagerModel) View() string {
	var b strings.Builder
	fmt.Fprint(&b, m.viewport.View()+"\n")

	m.statusBarView(&b)

	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}
	return b.String()
}

func (m pagerModel) statusBarView(b *strings.Builder) {
	const (
		minPercent               float64 = 0.0
		maxPercent               float64 = 1.0
		percentToStringMagnitude float64 = 100.0
	)

	showStatusMessage := m.statusMessage != ""
	style := statusBarNoteStyle
	switch {
	case showStatusMessage && m.statusIsError:
		style = statusBarErrorStyle
	case showStatusMessage:
		style = statusBarMessageStyle
	}

	logo := logoStyle(" caption-router ")

	percent := math.Max(minPercent, math.Min(maxPercent, m.viewport.ScrollPercent()))
	scrollPercent := style(fmt.Sprintf(" %3.f%% ", percent*percentToStringMagnitude))

	helpNote := statusBarHelpStyle(" ? Help ")
	if showStatusMessage {
		helpNote = statusBarMessageHelpStyle(" ? Help ")
	}

	note := m.statusMessage
	if !showStatusMessage {
		note = m.common.cfg.Session.Code
		if m.playerID != "" {
			note += " | " + m.playerID
		}
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(scrollPercent)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)
	note = style(note)

	padding := max(0,
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(scrollPercent)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := style(strings.Repeat(" ", padding))

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		scrollPercent,
		helpNote,
	)
}

func (m pagerModel) helpView() (s string) {
	col1 := []string{
		"a       add player",
		"x       remove player",
		"m       toggle audio",
		"L       change language",
		"D       next output device",
		"c       copy latest phrase",
		"S/P     save/load preset",
		"R       reconnect all",
	}

	s += "\n"
	s += "k/↑      previous player     " + col1[0] + "\n"
	s += "j/↓      next player         " + col1[1] + "\n"
	s += "b/pgup   page up             " + col1[2] + "\n"
	s += "f/pgdn   page down           " + col1[3] + "\n"
	s += "g/home   go to top           " + col1[4] + "\n"
	s += "G/end    go to bottom        " + col1[5] + "\n"
	s += "?        close help          " + col1[6] + "\n"
	s += "q        quit                " + col1[7]

	s = indent(s, 2)

	// Fill up empty cells with spaces for background coloring
	if m.common.width > 0 {
		lines := strings.Split(s, "\n")
		for i := 0; i < len(lines); i++ {
			l := runewidth.StringWidth(lines[i])
			n := max(m.common.width-l, 0)
			lines[i] += strings.Repeat(" ", n)
		}
		s = strings.Join(lines, "\n")
	}

	return helpViewStyle(s)
}

// renderTranscript formats entries oldest first, wrapped to width.
func renderTranscript(entries []transcript.Entry, width int) string {
	if len(entries) == 0 {
		return subtleStyle("  Waiting for the presentation…")
	}

	wrap := width - 2
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		var line string
		switch {
		case e.Kind == transcript.KindNote && e.Error:
			line = errorStyle(e.Text)
		case e.Kind == transcript.KindNote:
			line = subtleStyle(e.Text)
		default:
			text := e.Text
			if !e.Final {
				text = pendingStyle(text)
			}
			line = text
			if e.Speaker != "" {
				line = speakerStyle(e.Speaker+":") + " " + text
			}
			if e.Playing {
				line = playingStyle("♪ ") + line
			}
		}
		if wrap > 0 {
			line = wordwrap.String(line, wrap)
		}
		lines = append(lines, indent(line, 1))
	}
	return strings.Join(lines, "")
}
