package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guregu/null"
	"synccursor/pkg/checkpoint"
)

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(magenta).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().Foreground(cyan).Bold(true)
	activeStyle = lipgloss.NewStyle().Foreground(green).Bold(true)
)

const emptyCell = "-"

// RenderCheckpoint draws the channel ring and the deletion mark of a
// checkpoint as a table. Dates are shown in loc.
func RenderCheckpoint(cp *checkpoint.Checkpoint, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}

	marks := cp.InsertMarks()
	rows := [][]string{{"", "channel", "uuid", "lastModified"}}
	for i := 0; i < cp.Channels(); i++ {
		cursor := ""
		if i == cp.InsertIndex() {
			cursor = ">"
		}
		mark := checkpoint.Mark{}
		if i < len(marks) {
			mark = marks[i]
		}
		rows = append(rows, []string{cursor, fmt.Sprint(i), idCell(mark.ID), dateCell(mark.Date, loc)})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var lines []string
	for r, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		line := strings.Join(cells, "  ")
		switch {
		case r == 0:
			line = render(headerStyle, line)
		case row[0] == ">":
			line = render(activeStyle, line)
		}
		lines = append(lines, line)
	}

	lines = append(lines, "",
		render(labelStyle, "uuidToRemove")+": "+idCell(cp.DeleteID()),
		render(labelStyle, "lastRemoved")+":  "+dateCell(cp.DeleteDate(), loc),
	)

	body := lipgloss.JoinVertical(lipgloss.Left, lines...)
	if noColor {
		return body
	}
	return panelStyle.Render(body)
}

func idCell(id null.String) string {
	if !id.Valid {
		return emptyCell
	}
	return id.String
}

func dateCell(date null.Time, loc *time.Location) string {
	if !date.Valid {
		return emptyCell
	}
	return date.Time.In(loc).Format(checkpoint.DateLayout)
}
