package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintJSON(&buf, map[string]string{"k": "v"}))
	assert.JSONEq(t, `{"k":"v"}`, buf.String())
}

func TestPrintTable(t *testing.T) {
	data := NewTableData("NAME", "STATUS")
	data.AddRow("iqn.2026-01.com.example:t0", "online")

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, data))
	assert.Contains(t, buf.String(), "iqn.2026-01.com.example:t0")
	assert.Contains(t, buf.String(), "online")
}

func TestPrinterPrintFallsBackToJSONWithoutRenderer(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatTable, false)
	require.NoError(t, p.Print(map[string]int{"count": 1}))
	assert.JSONEq(t, `{"count":1}`, buf.String())
}
