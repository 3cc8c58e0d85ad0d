package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mborgerson/xemu-test/ci"
	"github.com/mborgerson/xemu-test/model"
)

var (
	StylePass   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))             // Green
	StyleFail   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true) // Red
	StyleSkip   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))            // Grey
	StyleHeader = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	StyleCell   = lipgloss.NewStyle().Padding(0, 1)
)

// maxMessage bounds the message column of the summary table.
const maxMessage = 60

// Summary is the outcome of a run.
type Summary struct {
	Results  []model.TestResult
	Duration time.Duration
}

// Failed returns the number of failed tests.
func (s Summary) Failed() int {
	n := 0
	for i := range s.Results {
		if s.Results[i].Status == model.TestStatusFailed {
			n++
		}
	}
	return n
}

// Succeeded reports whether no test failed.
func (s Summary) Succeeded() bool {
	return s.Failed() == 0
}

// ExitCode is the process exit status for the run.
func (s Summary) ExitCode() int {
	if s.Succeeded() {
		return 0
	}
	return 1
}

var headers = []string{"Test", "Status", "Passed", "Failed", "Unverified", "Duration", "Message"}

// Rows returns one row per test.
func (s Summary) Rows() [][]string {
	rows := make([][]string, 0, len(s.Results))
	for _, r := range s.Results {
		passed, failed, unverified := r.Counts()
		rows = append(rows, []string{
			r.Name,
			string(r.Status),
			fmt.Sprint(passed),
			fmt.Sprint(failed),
			fmt.Sprint(unverified),
			r.Duration.Round(time.Millisecond).String(),
			firstLine(r.Message, maxMessage),
		})
	}
	return rows
}

// Table renders the summary for a terminal. Colours are used when styled.
func (s Summary) Table(styled bool) string {
	rows := s.Rows()
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return StyleHeader
			}
			if !styled || col != 1 || row < 0 || row >= len(rows) {
				return StyleCell
			}
			return statusStyle(model.TestStatus(rows[row][1])).Padding(0, 1)
		})

	return fmt.Sprintf("%s\n%d test(s), %d failed in %s\n",
		t.Render(), len(s.Results), s.Failed(), s.Duration.Round(time.Millisecond))
}

// JobSummary renders the summary as markdown for the CI job page.
func (s Summary) JobSummary() *ci.JobSummary {
	js := ci.NewJobSummary()
	js.AddHeading("xemu test results", 2)
	js.AddTable(headers, s.Rows())

	for _, r := range s.Results {
		var failed []string
		for _, sub := range r.Subtests {
			if sub.Status == model.TestStatusFailed {
				failed = append(failed, sub.Name+": "+firstLine(sub.Message, maxMessage))
			}
		}
		if len(failed) > 0 {
			js.AddCollapsible(fmt.Sprintf("%s: %d failed subtest(s)", r.Name, len(failed)), strings.Join(failed, "<br>\n"))
		}
	}

	if s.Succeeded() {
		js.AddParagraph("All tests passed.")
	} else {
		js.AddParagraph(fmt.Sprintf("%d test(s) failed.", s.Failed()))
	}
	return js
}

func statusStyle(status model.TestStatus) lipgloss.Style {
	switch status {
	case model.TestStatusPassed:
		return StylePass
	case model.TestStatusFailed:
		return StyleFail
	}
	return StyleSkip
}

func firstLine(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > max {
		s = s[:max-3] + "..."
	}
	return s
}
