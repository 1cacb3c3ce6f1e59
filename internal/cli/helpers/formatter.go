package helpers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"
)

// OutputFormat represents the desired output format.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
)

// AllFormats lists every supported format.
var AllFormats = []OutputFormat{FormatTable, FormatJSON, FormatCSV}

// Formatter renders command output.
type Formatter interface {
	Format(data any, writer io.Writer) error
}

// NewFormatter creates a new Formatter for the given format.
func NewFormatter(format OutputFormat) (Formatter, error) {
	switch format {
	case FormatTable:
		return &TableFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// JSONFormatter formats data as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data any, writer io.Writer) error {
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// TableFormatter renders a slice of structs as aligned columns named by their
// `header` tags. A single struct is rendered as FIELD/VALUE rows.
type TableFormatter struct{}

func (f *TableFormatter) Format(data any, writer io.Writer) error {
	rows, err := tabulate(data)
	if err != nil || rows == nil {
		return err
	}

	w := tabwriter.NewWriter(writer, 0, 0, 3, ' ', 0)
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return w.Flush()
}

// CSVFormatter renders the same rows as TableFormatter as CSV.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(data any, writer io.Writer) error {
	rows, err := tabulate(data)
	if err != nil || rows == nil {
		return err
	}

	w := csv.NewWriter(writer)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}

// tabulate returns the header row followed by one row per element. An empty
// slice yields no rows.
func tabulate(data any) ([][]string, error) {
	val := reflect.ValueOf(data)
	for val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("data must not be nil")
		}
		val = val.Elem()
	}

	switch val.Kind() {
	case reflect.Slice:
		if val.Len() == 0 {
			return nil, nil
		}
		rows := [][]string{headers(val.Index(0).Type())}
		for i := 0; i < val.Len(); i++ {
			rows = append(rows, rowValues(val.Index(i)))
		}
		return rows, nil

	case reflect.Struct:
		rows := [][]string{{"FIELD", "VALUE"}}
		names := headers(val.Type())
		for i, v := range rowValues(val) {
			rows = append(rows, []string{names[i], v})
		}
		return rows, nil

	default:
		return nil, fmt.Errorf("data must be a struct or a slice of structs")
	}
}

func headers(t reflect.Type) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	var out []string
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("header"); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

func rowValues(v reflect.Value) []string {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	var out []string
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Tag.Get("header") == "" {
			continue
		}
		out = append(out, cell(v.Field(i).Interface()))
	}
	return out
}

func cell(v any) string {
	switch x := v.(type) {
	case time.Duration:
		return FormatDuration(x)
	case bool:
		if x {
			return "yes"
		}
		return "no"
	case []string:
		return strings.Join(x, ",")
	default:
		return fmt.Sprintf("%v", x)
	}
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Microsecond:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	case d < time.Millisecond:
		return fmt.Sprintf("%.1fµs", float64(d.Nanoseconds())/1000)
	case d < time.Second:
		return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}
