package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/domain"
)

// DefaultTerminalWidth is used when terminal width cannot be determined.
const DefaultTerminalWidth = 80

// TerminalWidth returns the current terminal width, or DefaultTerminalWidth
// when detection fails (piped output, tests).
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	return width
}

// Table renders aligned columnar output with a styled header. Column widths
// grow to fit content; there is no truncation because queue and farm tables
// carry short cells by construction.
type Table struct {
	headers []string
	rows    [][]string
	styles  *TableStyles
}

// NewTable creates a table with the given column headers.
func NewTable(headers ...string) *Table {
	return &Table{
		headers: headers,
		styles:  NewTableStyles(),
	}
}

// AddRow appends one data row. Missing cells render empty, extra cells are
// dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	t.rows = append(t.rows, row)
}

// Render writes the table to the writer.
func (t *Table) Render(w io.Writer) error {
	widths := t.columnWidths()

	headerParts := make([]string, len(t.headers))
	for i, h := range t.headers {
		headerParts[i] = t.styles.Header.Render(padRight(h, widths[i]))
	}
	if _, err := fmt.Fprintln(w, strings.Join(headerParts, "  ")); err != nil {
		return err
	}

	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = padRight(cell, widths[i])
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, "  ")); err != nil {
			return err
		}
	}
	return nil
}

// String renders the table to a string. Used by the watch view.
func (t *Table) String() string {
	var sb strings.Builder
	_ = t.Render(&sb)
	return sb.String()
}

// columnWidths sizes each column to its widest visible cell.
func (t *Table) columnWidths() []int {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if w := utf8.RuneCountInString(stripANSI(cell)); w > widths[i] {
				widths[i] = w
			}
		}
	}
	return widths
}

// RenderTaskStatusCell renders a task status with icon and color.
func RenderTaskStatusCell(status constants.TaskStatus) string {
	style := lipgloss.NewStyle().Foreground(TaskStatusColors()[status])
	return TaskStatusIcon(status) + " " + style.Render(string(status))
}

// RenderTargetStateCell renders a farm target state with icon and color.
func RenderTargetStateCell(state constants.TargetState) string {
	style := lipgloss.NewStyle().Foreground(TargetStateColors()[state])
	return TargetStateIcon(state) + " " + style.Render(string(state))
}

// TaskTable builds the queue table shown by status and watch surfaces.
// Rows arrive already ordered by the caller.
func TaskTable(tasks []domain.Task, now time.Time) *Table {
	t := NewTable("ID", "KIND", "STATUS", "NOT BEFORE", "ATTEMPTS", "PRIORITY")
	for i := range tasks {
		task := &tasks[i]
		t.AddRow(
			fmt.Sprintf("%d", task.ID),
			task.Kind.String(),
			RenderTaskStatusCell(task.Status),
			FormatEligibility(task.NotBefore, now),
			fmt.Sprintf("%d/%d", task.AttemptCount, task.MaxAttempts),
			fmt.Sprintf("%d", task.Priority),
		)
	}
	return t
}

// FarmTable builds the farm target table shown by status and watch surfaces.
func FarmTable(targets []domain.RaidTarget, now time.Time) *Table {
	t := NewTable("ID", "NAME", "COORDS", "STATE", "ELIGIBLE", "RAIDS")
	for i := range targets {
		target := &targets[i]
		name := target.Name
		if !target.Enabled {
			name = StyleDim.Render(name + " (disabled)")
		}
		t.AddRow(
			fmt.Sprintf("%d", target.ID),
			name,
			fmt.Sprintf("(%d|%d)", target.X, target.Y),
			RenderTargetStateCell(target.State),
			FormatEligibility(target.NextEligibleTime, now),
			fmt.Sprintf("%d", target.RaidsSent),
		)
	}
	return t
}

// SelectorTable builds the selector registry table. The best candidate per
// entry leads; demoted candidates render dimmed.
func SelectorTable(entries []domain.SelectorEntry) *Table {
	t := NewTable("ENTRY", "KIND", "LOCATOR", "CONFIDENCE", "SOURCE", "STATE")
	for i := range entries {
		e := &entries[i]
		for j := range e.Candidates {
			c := &e.Candidates[j]
			name := ""
			kind := ""
			if j == 0 {
				name = e.Name
				kind = string(e.Kind)
			}
			state := "active"
			locator := c.Locator
			if c.Demoted {
				state = StyleDim.Render("demoted")
				locator = StyleDim.Render(locator)
			}
			t.AddRow(
				name,
				kind,
				locator,
				fmt.Sprintf("%.2f", c.Confidence),
				c.Source,
				state,
			)
		}
	}
	return t
}
