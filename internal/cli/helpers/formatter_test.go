package helpers

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	Name    string        `header:"NAME" json:"name"`
	Count   int           `header:"COUNT" json:"count"`
	Elapsed time.Duration `header:"ELAPSED" json:"elapsed"`
	Idle    bool          `header:"IDLE" json:"idle"`
	Extra   string        `json:"extra"`
}

var rows = []row{
	{Name: "main", Count: 3, Elapsed: 1500 * time.Microsecond, Idle: false, Extra: "hidden"},
	{Name: "worker", Count: 0, Elapsed: 2 * time.Second, Idle: true},
}

func TestNewFormatter(t *testing.T) {
	for _, f := range AllFormats {
		got, err := NewFormatter(f)
		require.NoError(t, err, f)
		assert.NotNil(t, got)
	}
	_, err := NewFormatter("yaml")
	assert.Error(t, err)
}

func TestTableFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&TableFormatter{}).Format(rows, &buf))

	out := buf.String()
	for _, want := range []string{"NAME", "COUNT", "ELAPSED", "IDLE", "main", "worker", "1.5ms", "2.00s", "yes", "no"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "hidden")
}

func TestTableFormatterSingleStruct(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&TableFormatter{}).Format(&rows[0], &buf))

	out := buf.String()
	assert.Contains(t, out, "FIELD")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "main")
}

func TestFormattersRejectScalars(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, (&TableFormatter{}).Format(42, &buf))
	assert.Error(t, (&CSVFormatter{}).Format("x", &buf))
}

func TestEmptySliceWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&TableFormatter{}).Format([]row{}, &buf))
	require.NoError(t, (&CSVFormatter{}).Format([]row{}, &buf))
	assert.Empty(t, buf.String())
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&CSVFormatter{}).Format(rows, &buf))
	assert.Equal(t, "NAME,COUNT,ELAPSED,IDLE\nmain,3,1.5ms,no\nworker,0,2.00s,yes\n", buf.String())
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(rows, &buf))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "worker", decoded[1]["name"])
	assert.Equal(t, "hidden", decoded[0]["extra"])
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Nanosecond, "500ns"},
		{1500 * time.Nanosecond, "1.5µs"},
		{20 * time.Millisecond, "20.0ms"},
		{90 * time.Second, "90.00s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}

func TestPrint(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	require.NoError(t, Print(cmd, "csv", AllFormats, rows))
	assert.Contains(t, buf.String(), "main,3")

	err := Print(cmd, "xml", AllFormats, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}
