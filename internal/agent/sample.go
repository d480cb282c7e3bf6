package agent

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const rosterSheet = "agents"

// SampleAgents is the starter roster written when no workbook exists.
var SampleAgents = []Agent{
	{ID: "A001", Name: "張大明", Department: "業務部", Status: StatusActive},
	{ID: "A002", Name: "李小華", Department: "業務部", Status: StatusActive},
	{ID: "A003", Name: "王曉雯", Department: "業務部", Status: StatusActive},
	{ID: "ADMIN001", Name: "系統管理員", Department: "管理部", Status: StatusActive},
}

// Workbook renders agents as a roster workbook.
func Workbook(agents []Agent) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), rosterSheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	header := []any{colID, colName, colDepartment, colStatus, colPasscodeHash}
	if err := f.SetSheetRow(rosterSheet, "A1", &header); err != nil {
		_ = f.Close()
		return nil, err
	}
	for i, a := range agents {
		row := []any{a.ID, a.Name, a.Department, a.Status, a.passcodeHash}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(rosterSheet, cell, &row); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

// WriteSample writes the sample roster workbook to path.
func WriteSample(path string) error {
	f, err := Workbook(SampleAgents)
	if err != nil {
		return fmt.Errorf("build sample roster: %w", err)
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save sample roster: %w", err)
	}
	return nil
}

// WriteTo streams the roster workbook for agents to w.
func WriteTo(w io.Writer, agents []Agent) error {
	f, err := Workbook(agents)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}
