package ci

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// JobSummary accumulates markdown for the job summary page.
type JobSummary struct {
	parts []string
}

// NewJobSummary creates an empty JobSummary.
func NewJobSummary() *JobSummary {
	return &JobSummary{}
}

// AddRaw appends raw markdown.
func (s *JobSummary) AddRaw(content string) {
	s.parts = append(s.parts, content)
}

// AddHeading appends a heading of the given level.
func (s *JobSummary) AddHeading(text string, level int) {
	if level < 1 {
		level = 1
	}
	s.parts = append(s.parts, strings.Repeat("#", level)+" "+text+"\n")
}

// AddParagraph appends a paragraph.
func (s *JobSummary) AddParagraph(text string) {
	s.parts = append(s.parts, text+"\n")
}

// AddTable appends a markdown table.
func (s *JobSummary) AddTable(headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.MarkdownBorder()).
		BorderTop(false).
		BorderBottom(false).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			return cellStyle
		})
	s.parts = append(s.parts, t.Render(), "")
}

// AddCollapsible appends a details block.
func (s *JobSummary) AddCollapsible(summary, details string) {
	s.parts = append(s.parts,
		"<details><summary>"+summary+"</summary>\n",
		details,
		"</details>\n",
	)
}

// AddCodeBlock appends a fenced code block.
func (s *JobSummary) AddCodeBlock(code, language string) {
	s.parts = append(s.parts, "```"+language, code, "```\n")
}

// String renders the summary.
func (s *JobSummary) String() string {
	return strings.Join(s.parts, "\n")
}
