// Package tui renders batch progress and run summaries for the terminal.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/endogpt/endokit/internal/engine/batch"
	"github.com/endogpt/endokit/internal/logging"
)

// Layout constants.
const (
	barWidth    = 48
	barPadding  = 4
	maxBarWidth = 80
)

// Reporter receives dispatcher progress. Update is called from a single
// goroutine between Start and Finish.
type Reporter interface {
	Start(title string, total int)
	Update(p batch.ProgressSnapshot)
	Finish()
}

// NewReporter returns an animated progress bar writing to w when tty is true,
// and a reporter that logs each completion otherwise.
func NewReporter(ctx context.Context, w io.Writer, tty bool) Reporter {
	if tty {
		return &barReporter{ctx: ctx, out: w}
	}
	return &logReporter{ctx: ctx}
}

// logReporter writes one log line per completed item.
type logReporter struct {
	ctx   context.Context
	title string
}

func (r *logReporter) Start(title string, total int) {
	r.title = title
	log := logging.ComponentLogger(*logging.FromContext(r.ctx), "progress")
	log.Info().Str("task", title).Int("total", total).Msg("starting")
}

func (r *logReporter) Update(p batch.ProgressSnapshot) {
	log := logging.ComponentLogger(*logging.FromContext(r.ctx), "progress")
	log.Info().
		Str("task", r.title).
		Int("done", p.ProcessedItems).
		Int("total", p.TotalItems).
		Int("failed", p.FailedItems).
		Str("percent", fmt.Sprintf("%.1f", p.PercentComplete)).
		Dur("eta", p.Remaining).
		Msg("progress")
}

func (r *logReporter) Finish() {}

// barReporter drives a bubbletea program in the background.
type barReporter struct {
	ctx  context.Context
	out  io.Writer
	prog *tea.Program
	done chan struct{}
	once sync.Once
}

func (r *barReporter) Start(title string, total int) {
	r.prog = tea.NewProgram(
		newProgressModel(title, total),
		tea.WithContext(r.ctx),
		tea.WithOutput(r.out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		if _, err := r.prog.Run(); err != nil {
			log := logging.ComponentLogger(*logging.FromContext(r.ctx), "progress")
			log.Debug().Err(err).Msg("progress display stopped")
		}
	}()
}

func (r *barReporter) Update(p batch.ProgressSnapshot) {
	if r.prog != nil {
		r.prog.Send(progressMsg(p))
	}
}

// Finish stops the display and waits for the final frame to be written.
func (r *barReporter) Finish() {
	if r.prog == nil {
		return
	}
	r.once.Do(func() {
		r.prog.Send(doneMsg{})
		<-r.done
	})
}

type (
	progressMsg batch.ProgressSnapshot
	doneMsg     struct{}
)

// progressModel is the bubbletea model behind barReporter.
type progressModel struct {
	title string
	bar   progress.Model
	snap  batch.ProgressSnapshot
	done  bool
}

func newProgressModel(title string, total int) progressModel {
	return progressModel{
		title: title,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
		snap:  batch.ProgressSnapshot{TotalItems: total},
	}
}

func (m progressModel) Init() tea.Cmd { return nil }

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.snap = batch.ProgressSnapshot(msg)
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.bar.Width = max(min(msg.Width-barPadding, maxBarWidth), 1)
	}
	return m, nil
}

func (m progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorHeader)
	muted := lipgloss.NewStyle().Foreground(ColorMuted)

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n")
	sb.WriteString(m.bar.ViewAs(m.snap.PercentComplete / 100))
	sb.WriteString("\n")

	counts := fmt.Sprintf("%s/%s done", FormatCount(m.snap.ProcessedItems), FormatCount(m.snap.TotalItems))
	if m.snap.FailedItems > 0 {
		counts += lipgloss.NewStyle().Foreground(ColorError).
			Render(fmt.Sprintf(", %s failed", FormatCount(m.snap.FailedItems)))
	}
	sb.WriteString(counts)
	if m.snap.ItemsPerSecond > 0 && !m.done {
		sb.WriteString(muted.Render(fmt.Sprintf("  %.2f items/s", m.snap.ItemsPerSecond)))
		if m.snap.Remaining > 0 {
			sb.WriteString(muted.Render("  ETA " + m.snap.Remaining.Round(time.Second).String()))
		}
	}
	sb.WriteString("\n")
	return sb.String()
}
