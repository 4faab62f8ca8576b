package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"pgmem/internal/engine"
	"pgmem/internal/pgerr"
	"pgmem/internal/types"
)

var (
	colorPrimary = lipgloss.Color("63")
	colorMuted   = lipgloss.Color("245")
	colorError   = lipgloss.Color("196")
	colorWarn    = lipgloss.Color("214")
	colorBorder  = lipgloss.Color("238")

	styleHeader = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
	styleNull   = lipgloss.NewStyle().Foreground(colorMuted).Italic(true).Padding(0, 1)
	styleMuted  = lipgloss.NewStyle().Foreground(colorMuted)
	styleError  = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleNotice = lipgloss.NewStyle().Foreground(colorWarn)
	styleTitle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
)

const nullDisplay = "NULL"

func renderBanner() string {
	return styleTitle.Render("pgmem") + styleMuted.Render(` in-memory PostgreSQL. Type \? for help, \q to quit.`)
}

func renderHelp() string {
	return strings.Join([]string{
		`\q      quit`,
		`\?      this help`,
		"end a statement with ; to run it",
	}, "\n")
}

// renderResult draws notices, the row table if any, and the command tag.
func renderResult(res *engine.Result) string {
	var parts []string
	for _, n := range res.Notices {
		parts = append(parts, styleNotice.Render(n.Severity+": "+n.Message))
	}
	if res.ReturnsRows() {
		parts = append(parts, renderTable(res))
		parts = append(parts, styleMuted.Render(rowCount(len(res.Rows))))
	} else {
		parts = append(parts, styleMuted.Render(res.Tag))
	}
	return strings.Join(parts, "\n")
}

func renderTable(res *engine.Result) string {
	headers := make([]string, len(res.Columns))
	for i, c := range res.Columns {
		headers[i] = c.Name
	}
	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = make([]string, len(row))
		for j, v := range row {
			if v.IsNull() {
				rows[i][j] = nullDisplay
				continue
			}
			rows[i][j] = types.Format(v)
		}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader
			}
			if row >= 0 && row < len(res.Rows) && res.Rows[row][col].IsNull() {
				return styleNull
			}
			if col < len(res.Columns) && res.Columns[col].Type.IsNumeric() {
				return styleCell.Align(lipgloss.Right)
			}
			return styleCell
		}).
		Render()
}

func rowCount(n int) string {
	if n == 1 {
		return "(1 row)"
	}
	return fmt.Sprintf("(%d rows)", n)
}

// renderError formats an error the way psql does, with DETAIL and HINT.
func renderError(err error) string {
	pg := pgerr.ToPgError(err)
	lines := []string{styleError.Render(fmt.Sprintf("%s:  %s", pg.Severity, pg.Message))}
	if pg.Detail != "" {
		lines = append(lines, "DETAIL:  "+pg.Detail)
	}
	if pg.Hint != "" {
		lines = append(lines, "HINT:  "+pg.Hint)
	}
	lines = append(lines, styleMuted.Render("SQLSTATE "+pg.Code))
	return strings.Join(lines, "\n")
}
