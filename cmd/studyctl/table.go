package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"studyflow/internal/models"
)

const maxTitleWidth = 40

// renderTable prints rows through a non-interactive table sized to its content.
func renderTable(titles []string, rows []table.Row) string {
	columns := make([]table.Column, len(titles))
	total := 0
	for i, title := range titles {
		width := runewidth.StringWidth(title)
		for _, row := range rows {
			if w := runewidth.StringWidth(row[i]); w > width {
				width = w
			}
		}
		columns[i] = table.Column{Title: title, Width: width}
		total += width + 1
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithStyles(listTableStyles()),
		table.WithFocused(false),
		table.WithWidth(total),
		// header plus its bottom border
		table.WithHeight(len(rows)+2),
	)
	return t.View()
}

func listTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell
	return styles
}

func planRows(plans []models.StudyPlan) []table.Row {
	rows := make([]table.Row, 0, len(plans))
	for _, p := range plans {
		rows = append(rows, table.Row{
			p.ID.String(),
			runewidth.Truncate(p.Title, maxTitleWidth, "…"),
			fmt.Sprintf("%d", p.CompletedSessions),
			fmt.Sprintf("%d", p.CompletedMinutes),
			fmt.Sprintf("%d", p.TargetMinutes),
		})
	}
	return rows
}

func sessionRows(sessions []models.StudySession) []table.Row {
	rows := make([]table.Row, 0, len(sessions))
	for _, s := range sessions {
		scheduled := "-"
		if s.ScheduledFor != nil {
			scheduled = s.ScheduledFor.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, table.Row{
			s.ID.String(),
			runewidth.Truncate(s.Title, maxTitleWidth, "…"),
			string(s.Status),
			(time.Duration(s.ElapsedSeconds) * time.Second).String(),
			scheduled,
		})
	}
	return rows
}
