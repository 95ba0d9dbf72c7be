package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tanq16/splitget/internal/utils"
)

// SegmentLine is the display state of one segment.
type SegmentLine struct {
	ID          int
	Label       string
	Status      string
	Message     string
	Current     int64
	Total       int64
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	Label string
	Error error
	Time  time.Time
}

// Manager renders one line per segment and redraws them in place on a
// terminal. In quiet mode nothing is written until ShowSummary.
type Manager struct {
	title       string
	lines       []*SegmentLine
	mutex       sync.RWMutex
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	displayWg   sync.WaitGroup
	started     bool
	quiet       bool
	out         io.Writer
	startTime   time.Time
}

func NewManager(title string) *Manager {
	return &Manager{
		title:       title,
		doneCh:      make(chan struct{}),
		displayTick: 200 * time.Millisecond,
		out:         os.Stdout,
		quiet:       !IsTerminal(),
		startTime:   time.Now(),
	}
}

// SetQuiet disables live redraws; the summary is still printed.
func (m *Manager) SetQuiet(quiet bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.quiet = quiet
}

func (m *Manager) SetOutput(w io.Writer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.out = w
}

// Register adds a line and returns its id. Ids follow registration order.
func (m *Manager) Register(label string, total int64) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	id := len(m.lines)
	m.lines = append(m.lines, &SegmentLine{
		ID:          id,
		Label:       label,
		Status:      "pending",
		Total:       total,
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
	})
	return id
}

func (m *Manager) line(id int) *SegmentLine {
	if id < 0 || id >= len(m.lines) {
		return nil
	}
	return m.lines[id]
}

// SetProgress records the absolute byte count of a line.
func (m *Manager) SetProgress(id int, current int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info := m.line(id); info != nil && !info.Complete {
		if current != info.Current {
			info.LastUpdated = time.Now()
		}
		info.Current = current
		if info.Status == "pending" && current > 0 {
			info.Status = "active"
		}
	}
}

func (m *Manager) Complete(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info := m.line(id); info != nil && !info.Complete {
		if message == "" {
			message = fmt.Sprintf("Completed %s", info.Label)
		}
		info.Message = message
		info.Current = info.Total
		info.Complete = true
		info.Status = "success"
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info := m.line(id); info != nil {
		info.Complete = true
		info.Status = "error"
		info.Error = err
		info.LastUpdated = time.Now()
		m.errors = append(m.errors, ErrorReport{Label: info.Label, Error: err, Time: time.Now()})
	}
}

// ReportRunError records a failure not tied to a single line.
func (m *Manager) ReportRunError(label string, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.errors = append(m.errors, ErrorReport{Label: label, Error: err, Time: time.Now()})
}

// Lines returns a copy of every line's state.
func (m *Manager) Lines() []SegmentLine {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	lines := make([]SegmentLine, len(m.lines))
	for i, l := range m.lines {
		lines[i] = *l
	}
	return lines
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case "success", "pass":
		return successStyle.Render(StyleSymbols["pass"])
	case "error", "fail":
		return errorStyle.Render(StyleSymbols["fail"])
	case "warning":
		return warningStyle.Render(StyleSymbols["warning"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["arrow"])
	}
}

func (m *Manager) renderLine(info *SegmentLine) string {
	elapsed := time.Since(info.StartTime)
	if info.Complete {
		elapsed = info.LastUpdated.Sub(info.StartTime)
	}
	head := fmt.Sprintf("  %s %s %s", m.GetStatusIndicator(info.Status), debugStyle.Render(elapsed.Round(time.Second).String()), info.Label)
	switch info.Status {
	case "success":
		return fmt.Sprintf("%s %s", head, successStyle.Render(info.Message))
	case "error":
		return fmt.Sprintf("%s %s", head, errorStyle.Render(fmt.Sprintf("%v", info.Error)))
	}
	bar := ProgressBar(info.Current, info.Total, 30)
	detail := progressDetail(info.Current, info.Total, elapsed.Seconds())
	return fmt.Sprintf("%s %s %s", head, debugStyle.Render(bar), streamStyle.Render(detail))
}

func (m *Manager) updateDisplay() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.quiet {
		return
	}
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	availableLines := getTerminalHeight() - 3
	lineCount := 0
	if m.title != "" {
		fmt.Fprintln(m.out, headerStyle.Render(m.title))
		lineCount++
	}
	hidden := 0
	for _, info := range m.lines {
		if lineCount >= availableLines {
			hidden++
			continue
		}
		fmt.Fprintln(m.out, m.renderLine(info))
		lineCount++
	}
	if hidden > 0 {
		fmt.Fprintln(m.out, debugStyle.Render(fmt.Sprintf("  ... %d more segments", hidden)))
		lineCount++
	}
	m.numLines = lineCount
}

func (m *Manager) StartDisplay() {
	m.started = true
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				return
			}
		}
	}()
}

// StopDisplay draws the final state and prints the summary.
func (m *Manager) StopDisplay() {
	if m.started {
		close(m.doneCh)
		m.displayWg.Wait()
	}
	m.ShowSummary()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+errorStyle.Bold(true).Render("Errors:"))
	for i, err := range m.errors {
		fmt.Fprintf(m.out, "    %s %s %s\n",
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", err.Time.Format(time.TimeOnly))),
			errorStyle.Render(err.Label))
		fmt.Fprintf(m.out, "      %s\n", errorStyle.Render(fmt.Sprintf("Error: %v", err.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var success, failures int
	var bytes int64
	for _, info := range m.lines {
		bytes += info.Current
		switch info.Status {
		case "success":
			success++
		case "error":
			failures++
		}
	}
	elapsed := time.Since(m.startTime)
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+success2Style.Render(fmt.Sprintf("Completed %d of %d segments", success, len(m.lines))))
	if failures > 0 {
		fmt.Fprintln(m.out, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d segments", failures, len(m.lines))))
	}
	fmt.Fprintln(m.out, "  "+debugStyle.Render(strings.Join([]string{
		utils.FormatBytes(uint64(bytes)),
		elapsed.Round(time.Millisecond).String(),
	}, " in ")))
	m.displayErrors()
	fmt.Fprintln(m.out)
}
