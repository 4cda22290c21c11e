package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/apresai/symposium/internal/discussion"
	"github.com/apresai/symposium/internal/pipeline"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	headerBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().
			Width(14).
			Align(lipgloss.Right).
			MarginRight(2)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	speakerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	roundStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Italic(true)

	thinkingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)
)

// maxVisibleTurns bounds the transcript tail drawn on screen.
const maxVisibleTurns = 6

type stateMsg struct{ state discussion.State }

type doneMsg struct {
	res *pipeline.Result
	err error
}

type tickMsg time.Time

// watchModel is the Bubble Tea model for the live transcript.
type watchModel struct {
	topic     string
	maxRounds int

	kind     discussion.Kind
	round    int
	speaker  string
	contribs []discussion.Contribution
	failure  string

	width  int
	start  time.Time
	now    time.Time
	cancel func()

	done bool
	res  *pipeline.Result
	err  error
}

func newWatchModel(opts pipeline.DiscussOptions, cancel func()) watchModel {
	now := time.Now()
	return watchModel{
		topic:     opts.Topic,
		maxRounds: opts.MaxRounds,
		width:     80,
		start:     now,
		now:       now,
		cancel:    cancel,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m watchModel) Init() tea.Cmd {
	return tick()
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			if !m.done && m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		if m.done {
			return m, nil
		}
		return m, tick()

	case stateMsg:
		m.apply(msg.state)
		return m, nil

	case doneMsg:
		m.done, m.res, m.err = true, msg.res, msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m *watchModel) apply(s discussion.State) {
	m.kind = s.Kind()
	switch st := s.(type) {
	case *discussion.InProgress:
		m.topic = st.Config.Topic
		m.maxRounds = st.Config.MaxRounds
		m.round = st.CurrentRound
		m.contribs = st.Contributions()
		m.speaker = ""
		if p, ok := st.CurrentPhilosopher(); ok {
			m.speaker = p.Name
		}
	case *discussion.Completed:
		m.contribs = st.FinalContributions
		m.speaker = ""
	case *discussion.Failed:
		m.failure = st.Message
		if st.Cause != nil {
			m.failure += ": " + st.Cause.Error()
		}
		m.speaker = ""
	}
}

func (m watchModel) stageLabel() string {
	switch m.kind {
	case discussion.KindNotStarted:
		return "starting"
	case discussion.KindInProgress:
		return fmt.Sprintf("round %d of %d", m.round, m.maxRounds)
	case discussion.KindCompleted:
		return "discussion complete"
	case discussion.KindSummarizing:
		return "summarizing"
	case discussion.KindSummarizationComplete:
		return "summary ready"
	case discussion.KindCreatingVideoScript:
		return "writing video script"
	case discussion.KindVideoScriptComplete:
		return "video script ready"
	case discussion.KindError:
		return "failed"
	}
	return m.kind.String()
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(headerBorder.Render(titleStyle.Render("Symposium")))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Topic") + valueStyle.Render(m.topic) + "\n")
	b.WriteString(labelStyle.Render("Stage") + valueStyle.Render(m.stageLabel()) + "\n")
	b.WriteString(labelStyle.Render("Elapsed") + valueStyle.Render(formatElapsed(m.now.Sub(m.start))) + "\n\n")

	textWidth := max(m.width-6, 20)
	turns := m.contribs
	if len(turns) > maxVisibleTurns {
		fmt.Fprintf(&b, "%s\n\n", roundStyle.Render(fmt.Sprintf("  ... %d earlier contributions", len(turns)-maxVisibleTurns)))
		turns = turns[len(turns)-maxVisibleTurns:]
	}
	round := 0
	for _, c := range turns {
		if c.RoundNumber != round {
			round = c.RoundNumber
			b.WriteString(roundStyle.Render(fmt.Sprintf("  Round %d", round)) + "\n")
		}
		b.WriteString("  " + speakerStyle.Render(c.Philosopher.Name) + "\n")
		b.WriteString(lipgloss.NewStyle().Width(textWidth).PaddingLeft(4).Render(c.Response) + "\n\n")
	}

	if m.speaker != "" {
		b.WriteString(thinkingStyle.Render(fmt.Sprintf("  %s is thinking...", m.speaker)) + "\n")
	}
	if m.failure != "" {
		b.WriteString("\n" + errorStyle.Render("  Error: "+m.failure) + "\n")
	}
	b.WriteString(helpStyle.Render("  q to stop"))
	b.WriteString("\n")
	return b.String()
}

// runWatched runs the pipeline behind the live transcript and prints the stored
// records once the view closes.
func runWatched(ctx context.Context, e *env, opts pipeline.RunOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newWatchModel(opts.Discuss, cancel), tea.WithAltScreen())

	var mu sync.Mutex
	var stops []func()
	runner, err := e.runner(ctx, pipeline.WithMachineHook(func(_ string, m *discussion.Machine) {
		ch, stop := m.Subscribe()
		mu.Lock()
		stops = append(stops, stop)
		mu.Unlock()
		go func() {
			for s := range ch {
				p.Send(stateMsg{state: s})
			}
		}()
	}))
	if err != nil {
		return err
	}

	var res *pipeline.Result
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, runErr = runner.Run(ctx, opts, nil)
		p.Send(doneMsg{res: res, err: runErr})
	}()

	_, tuiErr := p.Run()
	if tuiErr != nil {
		cancel()
	}
	<-done

	mu.Lock()
	for _, stop := range stops {
		stop()
	}
	mu.Unlock()

	if tuiErr != nil {
		return fmt.Errorf("TUI error: %w", tuiErr)
	}
	if res != nil {
		printResult(os.Stdout, res)
	}
	return runErr
}
