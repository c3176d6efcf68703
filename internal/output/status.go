package output

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/tanq16/vdl/internal/types"
	"github.com/tanq16/vdl/internal/utils"
)

func progressCell(snap types.Snapshot) string {
	done := utils.FormatBytes(uint64(max(snap.Downloaded, 0)))
	if snap.Total <= 0 {
		return done
	}
	percent := float64(snap.Downloaded) / float64(snap.Total) * 100
	return fmt.Sprintf("%s / %s (%.1f%%)", done, utils.FormatBytes(uint64(snap.Total)), percent)
}

// StatusTable renders stored records, one row each.
func StatusTable(records []types.Record) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			rec.Task.ID,
			rec.Task.FileName,
			string(rec.Snapshot.Status),
			progressCell(rec.Snapshot),
			rec.Snapshot.InfoLine,
			rec.Snapshot.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(debugStyle).
		Headers("ID", "FILE", "STATUS", "PROGRESS", "INFO", "UPDATED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Inherit(headerStyle)
			}
			if col == 2 && row >= 0 && row < len(records) {
				return style.Inherit(statusStyle(records[row].Snapshot.Status))
			}
			return style
		})
	return t.String()
}

func statusStyle(status types.Status) lipgloss.Style {
	switch status {
	case types.StatusSuccess:
		return successStyle
	case types.StatusError:
		return errorStyle
	case types.StatusPause, types.StatusCanceled:
		return warningStyle
	default:
		return pendingStyle
	}
}
