package partition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Mapping encodings found in id-map files.
const (
	EncodingObject = "object"
	EncodingArray  = "array"
)

// IDMap maps index row ids to chunk ids. It is immutable after parsing.
type IDMap struct {
	ids      map[int64]string
	encoding string
	skipped  int
}

// Lookup returns the chunk id for row.
func (m *IDMap) Lookup(row int64) (string, bool) {
	id, ok := m.ids[row]
	return id, ok
}

// Len returns the number of mapped rows.
func (m *IDMap) Len() int {
	return len(m.ids)
}

// Encoding returns EncodingObject or EncodingArray.
func (m *IDMap) Encoding() string {
	return m.encoding
}

// Skipped returns the number of entries ignored while parsing (null or empty
// values, keys that are not row numbers).
func (m *IDMap) Skipped() int {
	return m.skipped
}

// LoadIDMap reads and parses the mapping file at path.
func LoadIDMap(path string) (*IDMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read id map: %w", err)
	}
	return ParseIDMap(bytes.NewReader(data))
}

// ParseIDMap decodes either a JSON object keyed by decimal row id
// ({"0": "c1", "1": "c2"}) or a JSON array indexed by row id (["c1", "c2"]).
// Object keys must be canonical decimals: "01" or "+1" is skipped, not read as row 1.
// Values must be strings or numbers; null and "" entries are skipped.
func ParseIDMap(r io.Reader) (*IDMap, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode id map: %w", err)
	}

	m := &IDMap{ids: make(map[int64]string)}
	switch v := raw.(type) {
	case map[string]interface{}:
		m.encoding = EncodingObject
		for key, value := range v {
			row, err := strconv.ParseInt(key, 10, 64)
			if err != nil || row < 0 || strconv.FormatInt(row, 10) != key {
				m.skipped++
				continue
			}
			if err := m.put(row, value); err != nil {
				return nil, fmt.Errorf("id map key %q: %w", key, err)
			}
		}
	case []interface{}:
		m.encoding = EncodingArray
		for row, value := range v {
			if err := m.put(int64(row), value); err != nil {
				return nil, fmt.Errorf("id map index %d: %w", row, err)
			}
		}
	default:
		return nil, fmt.Errorf("decode id map: expected object or array, got %T", raw)
	}
	return m, nil
}

func (m *IDMap) put(row int64, value interface{}) error {
	switch v := value.(type) {
	case nil:
		m.skipped++
	case string:
		if v == "" {
			m.skipped++
			return nil
		}
		m.ids[row] = v
	case json.Number:
		m.ids[row] = v.String()
	default:
		return fmt.Errorf("chunk id must be a string, got %T", value)
	}
	return nil
}

// WriteIDMapFile writes chunk ids as a JSON object keyed by row id, the layout
// produced by the ingestion pipeline. The directory is created if needed.
func WriteIDMapFile(path string, chunkIDs map[int64]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create id map dir: %w", err)
	}
	obj := make(map[string]string, len(chunkIDs))
	for row, id := range chunkIDs {
		obj[strconv.FormatInt(row, 10)] = id
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
