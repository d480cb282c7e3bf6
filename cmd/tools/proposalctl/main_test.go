package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestQuoteTable(t *testing.T) {
	sel := writeFile(t, "lines.json", `{"lines":[{"category":"永念","variant":"2人","mode":"installment","quantity":1}]}`)
	out, err := run(t, "quote", "--selection", sel)
	require.NoError(t, err)
	require.Contains(t, out, "分期價-18期")
	require.Contains(t, out, "第1-18期")
	require.Contains(t, out, "final total")
}

func TestQuoteJSONAndWorkbook(t *testing.T) {
	sel := writeFile(t, "lines.json", `{"lines":[{"category":"永念","variant":"2人","mode":"installment","quantity":1}]}`)
	xlsx := filepath.Join(t.TempDir(), "proposal.xlsx")
	out, err := run(t, "quote", "--selection", sel, "--output", "json", "--xlsx", xlsx)
	require.NoError(t, err)
	require.Contains(t, out, `"display"`)

	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	defer f.Close()
	require.Len(t, f.GetSheetList(), 3)
}

func TestQuoteReportsEngineErrors(t *testing.T) {
	sel := writeFile(t, "lines.json", `{"lines":[{"category":"永念","variant":"99人","mode":"installment","quantity":1}]}`)
	_, err := run(t, "quote", "--selection", sel)
	require.ErrorContains(t, err, "line 1")

	_, err = run(t, "quote")
	require.Error(t, err)
}

func TestCatalogValidate(t *testing.T) {
	good := writeFile(t, "catalog.json", `{
  "version": "test-1",
  "categories": [{
    "name": "test", "kind": "cemetery",
    "variants": [{"name": "plot", "list_price": 100000, "price_points": {"cash": 80000}, "management_fee": 10000}]
  }]
}`)
	out, err := run(t, "catalog", "validate", "--file", good)
	require.NoError(t, err)
	require.Contains(t, out, "ok: version test-1")

	bad := writeFile(t, "bad.json", `{"version": "test-2", "categories": []}`)
	out, err = run(t, "catalog", "validate", "--file", bad)
	require.Error(t, err)
	require.Contains(t, out, "error:")
}

func TestCatalogModes(t *testing.T) {
	out, err := run(t, "catalog", "modes")
	require.NoError(t, err)
	require.Contains(t, out, "group_installment")
	require.Equal(t, 10, len(strings.Split(strings.TrimSpace(out), "\n")))
}

func TestAgentCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.xlsx")
	_, err := run(t, "agent", "sample", "--out", path)
	require.NoError(t, err)
	_, err = run(t, "agent", "sample", "--out", path)
	require.ErrorContains(t, err, "--force")

	out, err := run(t, "agent", "list", "--file", path)
	require.NoError(t, err)
	require.Contains(t, out, "ADMIN001")
	require.Contains(t, out, "張大明")
	require.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 5)

	out, err = run(t, "agent", "hash-passcode", "1234")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "$argon2id$"))
}
