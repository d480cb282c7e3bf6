package export_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/noah-isme/backend-proposal/internal/catalog"
	"github.com/noah-isme/backend-proposal/internal/export"
	"github.com/noah-isme/backend-proposal/internal/pricing"
)

func raw(t *testing.T, f *excelize.File, sheet, cell string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	return v
}

func TestWriteProposalWorkbook(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	summary, err := pricing.Compute(pricing.Selection{
		{Category: "永念", Variant: "2人", Mode: catalog.ModeInstallment, Quantity: 1},
	}, cat)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.Write(&buf, summary, export.Meta{
		AgentID:     "A001",
		AgentName:   "張大明",
		GeneratedAt: time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC),
	}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{export.SheetSummary, export.SheetLines, export.SheetSchedule}, f.GetSheetList())

	require.Equal(t, "A001 張大明", raw(t, f, export.SheetSummary, "B1"))
	require.Equal(t, "2024-05-01 10:30", raw(t, f, export.SheetSummary, "B2"))
	require.Equal(t, "149900", raw(t, f, export.SheetSummary, "B9"))
	require.Equal(t, "44600", raw(t, f, export.SheetSummary, "B10"))

	lines, err := f.GetRows(export.SheetLines)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.Equal(t, "分期價-18期", raw(t, f, export.SheetLines, "D2"))
	require.Equal(t, "18", raw(t, f, export.SheetLines, "L2"))
	require.Equal(t, "5000", raw(t, f, export.SheetLines, "M2"))

	schedule, err := f.GetRows(export.SheetSchedule)
	require.NoError(t, err)
	require.Len(t, schedule, 2)
	require.Equal(t, "第1-18期", raw(t, f, export.SheetSchedule, "A2"))
	require.Equal(t, "5850", raw(t, f, export.SheetSchedule, "D2"))
}

func TestWriteEmptyProposal(t *testing.T) {
	cat, err := catalog.Default()
	require.NoError(t, err)
	summary, err := pricing.Compute(nil, cat)
	require.NoError(t, err)

	f, err := export.Workbook(summary, export.Meta{})
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(export.SheetSchedule)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "0", raw(t, f, export.SheetSummary, "B9"))
}
