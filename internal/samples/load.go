package samples

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FromFields converts a loosely typed document (a decoded JSON/YAML object,
// a CSV row or a Mongo document) into a Record. Unparseable sample dates
// produce an invalid Date; unparseable numbers are treated as absent.
func FromFields(m map[string]any) Record {
	r := Record{
		TestResult:   toString(m["test_result"]),
		SubArea:      strings.TrimSpace(toString(m["sub_area"])),
		BeforeDuring: strings.TrimSpace(toString(m["before_during"])),
		FreshSmoked:  strings.TrimSpace(toString(m["fresh_smoked"])),
		Week:         strings.TrimSpace(toString(m["week"])),
		Point:        toString(m["point"]),
		LocationCode: toString(m["location_code"]),
		Description:  toString(m["description"]),
		Value:        toFloat(m["value"]),
		X:            toFloat(m["x"]),
		Y:            toFloat(m["y"]),
	}
	if id, ok := m["_id"]; ok {
		r.ID = toString(id)
	} else {
		r.ID = toString(m["id"])
	}

	switch v := m["sample_date"].(type) {
	case time.Time:
		r.SampleDate = DateOf(v.UTC())
	case Date:
		r.SampleDate = v
	default:
		if d, err := ParseSampleDate(toString(v)); err == nil {
			r.SampleDate = d
		}
	}
	return r
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if math.IsNaN(t) {
			return ""
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case time.Time:
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case bool:
		if t {
			f = 1
		}
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

// LoadCSV reads records from CSV with a header row naming the record fields.
func LoadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		fields := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(row) && row[i] != "" {
				fields[col] = row[i]
			}
		}
		records = append(records, FromFields(fields))
	}
	return records, nil
}

// LoadJSON reads records from a JSON array of objects.
func LoadJSON(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var docs []map[string]any
	if err := dec.Decode(&docs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse records JSON: %w", err)
	}
	return fromDocs(docs), nil
}

// LoadYAML reads records from a YAML sequence of mappings.
func LoadYAML(r io.Reader) ([]Record, error) {
	var docs []map[string]any
	if err := yaml.NewDecoder(r).Decode(&docs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse records YAML: %w", err)
	}
	return fromDocs(docs), nil
}

func fromDocs(docs []map[string]any) []Record {
	records := make([]Record, 0, len(docs))
	for _, d := range docs {
		records = append(records, FromFields(d))
	}
	return records
}

// LoadFile picks a decoder from the file extension.
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open records file: %w", err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return LoadCSV(f)
	case ".json":
		return LoadJSON(f)
	case ".yaml", ".yml":
		return LoadYAML(f)
	default:
		return nil, fmt.Errorf("unsupported records file extension %q", ext)
	}
}
