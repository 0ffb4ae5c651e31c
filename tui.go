package main

import (
	"fmt"
	"image"
	"math"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"earshot/animator"
	"earshot/audio"
	"earshot/history"
	"earshot/log"
	"earshot/scheduler"
)

const (
	frameInterval = time.Second / 60
	maxCardWidth  = 52
	cardHeight    = artRows
	statusLines   = 4
)

type historyMsg struct{}
type frameMsg struct{}
type signalMsg struct{}
type copiedMsg struct {
	text string
	err  error
}

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	subtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	elapsedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noArtStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpBoldStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
)

type tuiModel struct {
	p       *pipeline
	device  string
	monitor *audio.SignalMonitor

	width, height int
	now           time.Time

	// pinned is the entry being browsed; nil follows the latest entry.
	pinned *history.Entry

	copied   string
	copyErr  error
	noSignal bool
}

func newTUIModel(p *pipeline, device string) tuiModel {
	return tuiModel{
		p:       p,
		device:  device,
		monitor: audio.NewSignalMonitor(),
		now:     p.clock.Now(),
	}
}

func frameTick() tea.Cmd {
	return tea.Tick(frameInterval, func(time.Time) tea.Msg { return frameMsg{} })
}

func signalTick() tea.Cmd {
	return tea.Tick(audio.SignalTick, func(time.Time) tea.Msg { return signalMsg{} })
}

func (m tuiModel) Init() tea.Cmd {
	return tea.Batch(frameTick(), signalTick())
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "left", "h":
			m = m.browse(-1)
		case "right", "l":
			m = m.browse(1)
		case "esc":
			m.pinned = nil
		case "c":
			if text := copyText(m.selected()); text != "" {
				return m, copyCmd(text)
			}
		}
		m.sync()

	case frameMsg:
		m.now = m.p.clock.Now()
		m.sync()
		return m, frameTick()

	case signalMsg:
		switch m.monitor.Tick(m.p.meter.Take() >= audio.DefaultSignalGate) {
		case audio.SignalLost:
			log.Warn("no input signal")
			m.noSignal = true
		case audio.SignalRestored:
			log.Info("input signal restored")
			m.noSignal = false
		}
		return m, signalTick()

	case historyMsg:
		m.sync()

	case copiedMsg:
		m.copied, m.copyErr = msg.text, msg.err
	}
	return m, nil
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		err := clipboard.WriteAll(text)
		if err != nil {
			log.Warnf("clipboard: %v", err)
		}
		return copiedMsg{text: text, err: err}
	}
}

// copyText is "Title - Subtitle" of a recognized entry.
func copyText(e *history.Entry) string {
	if e == nil || e.Track() == nil {
		return ""
	}
	t := e.Track()
	if t.Subtitle == "" {
		return t.Title
	}
	return t.Title + " - " + t.Subtitle
}

// selected resolves the pinned entry against the current history. A pinned
// entry that has been evicted or collapsed falls back to the latest one.
func (m tuiModel) selected() *history.Entry {
	entries := m.p.hist.Entries()
	if len(entries) == 0 {
		return nil
	}
	if m.pinned != nil {
		if i := indexOf(entries, *m.pinned); i >= 0 {
			return &entries[i]
		}
	}
	return &entries[len(entries)-1]
}

func indexOf(entries []history.Entry, e history.Entry) int {
	for i := range entries {
		if entries[i].Equal(e) {
			return i
		}
	}
	return -1
}

// browse moves the selection by delta entries; stepping past the newest
// entry returns to live.
func (m tuiModel) browse(delta int) tuiModel {
	entries := m.p.hist.Entries()
	cur := m.selected()
	if cur == nil {
		return m
	}
	i := indexOf(entries, *cur) + delta
	switch {
	case i < 0:
		i = 0
	case i >= len(entries)-1:
		m.pinned = nil
		return m
	}
	e := entries[i]
	m.pinned = &e
	return m
}

// sync hands the current selection to the animator.
func (m tuiModel) sync() {
	if e := m.selected(); e != nil {
		m.p.anim.SetSelection(animator.Selection{Entry: *e})
	}
}

func (m tuiModel) cardSize() animator.Size {
	return animator.Size{W: min(m.width-2, maxCardWidth), H: cardHeight}
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	surface := animator.Size{W: m.width, H: max(m.height-statusLines, cardHeight)}
	card := m.cardSize()
	frame := m.p.anim.Frame(m.now, surface, card)

	rows := make([]string, surface.H)
	if frame.Card != nil {
		lines := m.renderCard(frame.Card, card.W)
		top := int(math.Round(frame.Card.Y))
		left := strings.Repeat(" ", max(int(math.Round(frame.Card.X)), 0))
		for i, line := range lines {
			if y := top + i; y >= 0 && y < surface.H {
				rows[y] = left + line
			}
		}
	} else if m.p.hist.Len() == 0 {
		msg := "Listening..."
		rows[surface.H/2] = strings.Repeat(" ", max((surface.W-len(msg))/2, 0)) + statusStyle.Render(msg)
	}

	return strings.Join(append(rows, m.statusView()...), "\n")
}

// renderCard draws artwork on the left and the scrolled title, subtitle and
// elapsed time beside it.
func (m tuiModel) renderCard(pl *animator.Placement, width int) []string {
	track := pl.Entry.Track()
	opts := m.p.anim.Options()
	textW := max(width-artCols-2, 1)

	var img image.Image
	if url, ok := track.ArtworkURL(); ok {
		img, _ = m.p.art.Lookup(track.Title, url)
	}
	art := renderArtwork(img, artCols, artRows)

	text := make([]string, cardHeight)
	text[1] = titleStyle.Render(scrollLine(track.Title, textW, pl.ScrollAt, opts.TitlePPS, opts.ScrollLead, opts.ScrollGap))
	text[2] = subtitleStyle.Render(scrollLine(track.Subtitle, textW, pl.ScrollAt, opts.SubtitlePPS, opts.ScrollLead, opts.ScrollGap))
	if pl.Entry.Outcome != nil {
		text[4] = elapsedStyle.Render(animator.Elapsed(track, pl.Entry.Outcome.CapturedAt, m.now))
	}

	lines := make([]string, cardHeight)
	for i := range lines {
		lines[i] = art[i] + "  " + text[i]
	}
	return lines
}

// scrollLine lays text into a row of width cells at the offsets the
// animator computes for it.
func scrollLine(text string, width int, lifetime time.Duration, pps float64, lead, gap int) string {
	if width <= 0 {
		return ""
	}
	cells := make([]string, width)
	for i := range cells {
		cells[i] = " "
	}
	textW := runewidth.StringWidth(text)
	for _, off := range animator.ScrollOffsets(textW, width, lifetime, pps, lead, gap) {
		col := int(math.Round(off))
		for _, r := range text {
			w := runewidth.RuneWidth(r)
			if col >= 0 && col+w <= width {
				cells[col] = string(r)
				for k := 1; k < w; k++ {
					cells[col+k] = ""
				}
			}
			col += w
		}
	}
	return strings.Join(cells, "")
}

// renderArtwork samples img into cols x rows cells, two pixels per cell.
func renderArtwork(img image.Image, cols, rows int) []string {
	lines := make([]string, rows)
	if img == nil {
		blank := noArtStyle.Render(strings.Repeat("░", cols))
		for i := range lines {
			lines[i] = blank
		}
		mid := rows / 2
		pad := (cols - 1) / 2
		lines[mid] = noArtStyle.Render(strings.Repeat("░", pad) + "♪" + strings.Repeat("░", cols-pad-1))
		return lines
	}

	b := img.Bounds()
	at := func(x, y int) lipgloss.Color {
		px := b.Min.X + x*b.Dx()/cols
		py := b.Min.Y + y*b.Dy()/(rows*2)
		r, g, bl, _ := img.At(px, py).RGBA()
		return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, bl>>8))
	}

	var sb strings.Builder
	for cy := 0; cy < rows; cy++ {
		sb.Reset()
		for cx := 0; cx < cols; cx++ {
			sb.WriteString(lipgloss.NewStyle().
				Foreground(at(cx, cy*2)).
				Background(at(cx, cy*2+1)).
				Render("▀"))
		}
		lines[cy] = sb.String()
	}
	return lines
}

func (m tuiModel) statusView() []string {
	st := m.p.sched.Stats()
	fill := 100 * m.p.buf.Len() / max(m.p.buf.Cap(), 1)

	status := fmt.Sprintf("● %s  window %d%%  %d submitted  %d matched  %d missed  %d failed",
		st.State, fill, st.Submissions, st.Matches, st.Misses, st.Faults)
	lines := []string{statusStyle.Render(status)}

	var notes []string
	if m.noSignal {
		notes = append(notes, warnStyle.Render("⚠ no signal on "+m.device))
	} else {
		notes = append(notes, statusStyle.Render("input: "+m.device))
	}
	if st.State == scheduler.StateBackoff && st.LastError != "" {
		notes = append(notes, warnStyle.Render(truncate(st.LastError, m.width/2)))
	}
	lines = append(lines, strings.Join(notes, "  "))

	var info string
	if m.pinned != nil {
		entries := m.p.hist.Entries()
		if e := m.selected(); e != nil {
			info = statusStyle.Render(fmt.Sprintf("history %d/%d (esc for live)", indexOf(entries, *e)+1, len(entries)))
		}
	}
	switch {
	case m.copyErr != nil:
		info += " " + warnStyle.Render("copy failed")
	case m.copied != "":
		info += " " + okStyle.Render("[✓ copied]")
	}
	lines = append(lines, strings.TrimSpace(info))

	lines = append(lines,
		helpBoldStyle.Render("q")+helpStyle.Render(" quit  ")+
			helpBoldStyle.Render("c")+helpStyle.Render(" copy  ")+
			helpBoldStyle.Render("←/→")+helpStyle.Render(" history  ")+
			helpStyle.Render("earshot "+version))
	return lines
}

func truncate(s string, width int) string {
	if width <= 1 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}
