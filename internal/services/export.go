package services

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const leaderboardSheet = "Leaderboard"

// buildLeaderboardWorkbook renders ranked entries into an XLSX workbook.
func buildLeaderboardWorkbook(entries []LeaderboardEntry) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(leaderboardSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}

	headers := []string{"Rank", "Student", "Student ID", "Score", "Max Score", "Accuracy", "Submitted At"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(leaderboardSheet, cell, header); err != nil {
			return nil, err
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		_ = f.SetRowStyle(leaderboardSheet, 1, 1, headerStyle)
	}

	for i, entry := range entries {
		row := i + 2
		name := entry.StudentName
		if name == "" {
			name = entry.StudentID
		}
		values := []interface{}{
			entry.Rank,
			name,
			entry.StudentID,
			entry.Score,
			entry.MaxScore,
			fmt.Sprintf("%.1f%%", entry.Accuracy*100),
			entry.SubmittedAt.Format("2006-01-02 15:04:05"),
		}
		for j, value := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(leaderboardSheet, cell, value); err != nil {
				return nil, err
			}
		}
	}

	_ = f.SetColWidth(leaderboardSheet, "B", "C", 28)
	_ = f.SetColWidth(leaderboardSheet, "G", "G", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}

	return buf.Bytes(), nil
}
