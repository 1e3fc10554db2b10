package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/beamdrop/beamdrop/internal/utils"
)

// ProgressMsg advances one file's transfer fraction.
type ProgressMsg struct {
	ID       int
	Fraction float64
}

// ProgressErrorMsg marks one file as failed.
type ProgressErrorMsg struct {
	ID  int
	Err error
}

// progressItem tracks one file on the progress display.
type progressItem struct {
	name      string
	total     int64
	fraction  float64
	startTime time.Time
	started   bool
	speed     float64
	complete  bool
	err       error
}

// ProgressModel renders one bar per in-flight file and quits once all of
// them finish or fail.
type ProgressModel struct {
	mu    sync.RWMutex
	items []*progressItem
	bars  []progress.Model
	width int
}

func NewProgressModel(fileNames []string, fileSizes []int64) *ProgressModel {
	items := make([]*progressItem, len(fileNames))
	bars := make([]progress.Model, len(fileNames))

	for i := range fileNames {
		items[i] = &progressItem{
			name:  fileNames[i],
			total: fileSizes[i],
		}
		bars[i] = progress.New(progress.WithGradient("#34d399", "#818cf8"))
		bars[i].Width = 30
	}

	return &ProgressModel{items: items, bars: bars, width: 80}
}

func (m *ProgressModel) Init() tea.Cmd {
	return nil
}

func (m *ProgressModel) allDone() bool {
	for _, item := range m.items {
		if !item.complete && item.err == nil {
			return false
		}
	}
	return true
}

func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case ProgressMsg:
		m.mu.Lock()
		if msg.ID >= 0 && msg.ID < len(m.items) {
			item := m.items[msg.ID]
			if !item.started && msg.Fraction > 0 {
				item.started = true
				item.startTime = time.Now()
			}
			if item.started {
				if elapsed := time.Since(item.startTime).Seconds(); elapsed > 0 {
					item.speed = msg.Fraction * float64(item.total) / elapsed
				}
			}
			item.fraction = msg.Fraction
			if msg.Fraction >= 1 {
				item.complete = true
			}
		}
		done := m.allDone()
		m.mu.Unlock()
		if done {
			return m, tea.Quit
		}
		return m, nil

	case ProgressErrorMsg:
		m.mu.Lock()
		if msg.ID >= 0 && msg.ID < len(m.items) {
			m.items[msg.ID].err = msg.Err
		}
		done := m.allDone()
		m.mu.Unlock()
		if done {
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		for i := range m.bars {
			m.bars[i].Width = min(30, msg.Width-50)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m *ProgressModel) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	for i, item := range m.items {
		icon := IconFile
		switch {
		case item.err != nil:
			icon = IconError
		case item.complete:
			icon = IconSuccess
		}

		name := utils.TruncateString(item.name, 30)
		b.WriteString(fmt.Sprintf("%s %-32s %s %8s %12s\n",
			icon,
			name,
			m.bars[i].ViewAs(item.fraction),
			fmt.Sprintf("%.0f%%", item.fraction*100),
			utils.FormatSpeed(item.speed),
		))
		if item.err != nil {
			b.WriteString(ErrorStyle.Render("   "+item.err.Error()) + "\n")
		}
	}
	return b.String()
}

// Tracker couples a ProgressModel to a running bubbletea program.
type Tracker struct {
	program *tea.Program
	start   time.Time
}

func NewTracker(fileNames []string, fileSizes []int64) *Tracker {
	return &Tracker{
		program: tea.NewProgram(NewProgressModel(fileNames, fileSizes)),
	}
}

// Run blocks until every file completes or errors.
func (t *Tracker) Run() error {
	t.start = time.Now()
	_, err := t.program.Run()
	return err
}

func (t *Tracker) Update(id int, fraction float64) {
	t.program.Send(ProgressMsg{ID: id, Fraction: fraction})
}

func (t *Tracker) Fail(id int, err error) {
	t.program.Send(ProgressErrorMsg{ID: id, Err: err})
}

func (t *Tracker) Duration() time.Duration {
	return time.Since(t.start)
}
