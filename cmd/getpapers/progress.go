package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/henrybloomingdale/getpapers/internal/papers"
)

type runOutcome struct {
	res *papers.Result
	err error
}

// runWithTUI runs the pipeline behind a spinner and progress bar on w.
func runWithTUI(ctx context.Context, pipeline *papers.Pipeline, query string, w io.Writer) (*papers.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progressCh := make(chan papers.ProgressUpdate, 1024)
	pipeline.WithProgress(func(u papers.ProgressUpdate) {
		select {
		case progressCh <- u:
		default:
		}
	})

	out := make(chan runOutcome, 1)
	go func() {
		defer close(progressCh)
		r, e := pipeline.Run(ctx, query)
		out <- runOutcome{res: r, err: e}
	}()

	p := tea.NewProgram(
		newProgressModel(progressCh, cancel),
		tea.WithOutput(w),
	)
	if _, uiErr := p.Run(); uiErr != nil {
		cancel()
		o := <-out
		if o.err != nil {
			return nil, o.err
		}
		return nil, uiErr
	}
	o := <-out
	return o.res, o.err
}

// runPlain runs the pipeline, printing progress lines when verbose.
func runPlain(ctx context.Context, pipeline *papers.Pipeline, query string, w io.Writer, verbose bool) (*papers.Result, error) {
	if verbose {
		pipeline.WithProgress(func(u papers.ProgressUpdate) {
			fmt.Fprintln(w, progressLine(u))
		})
	}
	return pipeline.Run(ctx, query)
}

func progressLine(u papers.ProgressUpdate) string {
	switch {
	case u.PMID == "":
		return u.Message
	case u.Err != nil:
		return fmt.Sprintf("[%d/%d] PMID %s skipped: %v", u.Current, u.Total, u.PMID, u.Err)
	default:
		return fmt.Sprintf("[%d/%d] PMID %s", u.Current, u.Total, u.PMID)
	}
}

// --- progress UI (Charm) ---

type progressMsg papers.ProgressUpdate

type progressDoneMsg struct{}

type progressModel struct {
	ch     <-chan papers.ProgressUpdate
	cancel context.CancelFunc

	spinner spinner.Model
	bar     progress.Model

	phase   papers.ProgressPhase
	message string
	current int
	total   int
	skipped int
}

func newProgressModel(ch <-chan papers.ProgressUpdate, cancel context.CancelFunc) progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 32

	return progressModel{
		ch:      ch,
		cancel:  cancel,
		spinner: sp,
		bar:     bar,
		message: "Searching PubMed...",
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitProgress(m.ch))
}

func waitProgress(ch <-chan papers.ProgressUpdate) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		if !ok {
			return progressDoneMsg{}
		}
		return progressMsg(u)
	}
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		u := papers.ProgressUpdate(msg)
		m.phase = u.Phase
		if strings.TrimSpace(u.Message) != "" {
			m.message = u.Message
		} else if u.Phase == papers.ProgressFetch {
			m.message = "Fetching article details..."
		}
		if u.Err != nil {
			m.skipped++
		}
		m.current = u.Current
		m.total = u.Total
		return m, waitProgress(m.ch)

	case progressDoneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	bold := lipgloss.NewStyle().Bold(true)
	subtle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	line := fmt.Sprintf("%s %s", m.spinner.View(), bold.Render(m.message))
	if m.phase == papers.ProgressFetch && m.total > 0 {
		pct := float64(m.current) / float64(m.total)
		count := fmt.Sprintf(" %d/%d", m.current, m.total)
		if m.skipped > 0 {
			count += fmt.Sprintf(" (%d skipped)", m.skipped)
		}
		return line + "\n" + m.bar.ViewAs(pct) + subtle.Render(count) + "\n"
	}
	return line + "\n"
}
