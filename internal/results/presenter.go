// Package results aggregates extraction output and renders records as
// tables, JSON, CSV and spreadsheets.
package results

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/pdf-extractor/backend/internal/models"
)

// NotAvailable is rendered for absent values.
const NotAvailable = "N/A"

// Row is one field of a record rendered for display.
type Row struct {
	Field string `json:"field" msgpack:"field"`
	Value string `json:"value" msgpack:"value"`
}

// Table renders a record as field/value rows in key order. An empty record
// yields no rows.
func Table(rec models.Record) []Row {
	if len(rec) == 0 {
		return nil
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]Row, len(keys))
	for i, k := range keys {
		rows[i] = Row{Field: k, Value: FormatValue(rec[k])}
	}
	return rows
}

// FormatValue renders a single value: nil as N/A, sequences as their
// formatted elements joined with ", ", mappings as compact JSON and
// everything else in its natural string form.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return NotAvailable
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case json.Number:
		return val.String()
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatValue(item)
		}
		return strings.Join(parts, ", ")
	case map[string]any, models.Record:
		return compactJSON(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 && rv.Kind() == reflect.Slice {
			break
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = FormatValue(rv.Index(i).Interface())
		}
		return strings.Join(parts, ", ")
	case reflect.Map, reflect.Struct:
		return compactJSON(v)
	case reflect.Pointer:
		if rv.IsNil() {
			return NotAvailable
		}
		return FormatValue(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// PrettyJSON renders a record with two-space indentation, as copied to the
// clipboard. An empty record renders as {}.
func PrettyJSON(rec models.Record) ([]byte, error) {
	if rec == nil {
		rec = models.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// WriteCSV writes the record's table as Field,Value rows. An empty record
// writes nothing.
func WriteCSV(w io.Writer, rec models.Record) error {
	rows := Table(rec)
	if len(rows) == 0 {
		return nil
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Field", "Value"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Field, r.Value}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
