package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Load reads and parses a description document, format picked by the file
// extension: .json, .yml/.yaml or .toml, no extension treated as yaml.
func Load(fname string) (Document, error) {
	data, err := os.ReadFile(fname) // nolint
	if err != nil {
		return nil, fmt.Errorf("can't read description %s: %w", fname, err)
	}
	return Parse(data, fname)
}

// Parse parses a description document from data, fname only picks the format.
// The parsed document is validated before it is returned.
func Parse(data []byte, fname string) (Document, error) {
	var doc Document
	var err error
	switch {
	case strings.HasSuffix(fname, ".json"):
		doc, err = parseJSON(data)
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || filepath.Ext(fname) == "":
		doc, err = parseYAML(data)
	case strings.HasSuffix(fname, ".toml"):
		doc, err = parseTOML(data)
	default:
		return nil, fmt.Errorf("unknown description format %s", fname)
	}
	if err != nil {
		return nil, fmt.Errorf("can't parse description %s: %w", fname, err)
	}
	if err = doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid description %s: %w", fname, err)
	}
	return doc, nil
}

// LoadColumns reads a flat {column: constraint} document, the shape used for
// shared default columns applied during bootstrap.
func LoadColumns(fname string) (Columns, error) {
	data, err := os.ReadFile(fname) // nolint
	if err != nil {
		return nil, fmt.Errorf("can't read columns %s: %w", fname, err)
	}
	return ParseColumns(data, fname)
}

// ParseColumns parses a flat {column: constraint} document from data.
func ParseColumns(data []byte, fname string) (Columns, error) {
	var cols Columns
	var err error
	switch {
	case strings.HasSuffix(fname, ".json"):
		cols, err = parseJSONColumns(data)
	case strings.HasSuffix(fname, ".yml") || strings.HasSuffix(fname, ".yaml") || filepath.Ext(fname) == "":
		cols, err = parseYAMLColumns(data)
	case strings.HasSuffix(fname, ".toml"):
		cols, err = parseTOMLColumns(data)
	default:
		return nil, fmt.Errorf("unknown columns format %s", fname)
	}
	if err != nil {
		return nil, fmt.Errorf("can't parse columns %s: %w", fname, err)
	}
	if err = cols.validate(); err != nil {
		return nil, fmt.Errorf("invalid columns %s: %w", fname, err)
	}
	return cols, nil
}

// parseJSON walks the document with a token decoder instead of unmarshalling
// into maps, the only way to keep the declaration order of keys.
func parseJSON(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := jsonDelim(dec, '{'); err != nil {
		return nil, err
	}

	doc := Document{}
	for dec.More() {
		dbName, err := jsonKey(dec)
		if err != nil {
			return nil, err
		}
		db := Database{Name: dbName}
		if err = jsonDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("database %q: %w", dbName, err)
		}
		for dec.More() {
			key, err := jsonKey(dec)
			if err != nil {
				return nil, err
			}
			if key == attachKey {
				if err = dec.Decode(&db.Attach); err != nil {
					return nil, fmt.Errorf("can't parse attach list for %q: %w", dbName, err)
				}
				continue
			}
			cols, err := jsonColumns(dec)
			if err != nil {
				return nil, fmt.Errorf("can't parse table %s.%s: %w", dbName, key, err)
			}
			db.Tables = append(db.Tables, Table{Name: key, Columns: cols})
		}
		if err = jsonDelim(dec, '}'); err != nil {
			return nil, err
		}
		doc = append(doc, db)
	}

	if err := jsonDelim(dec, '}'); err != nil {
		return nil, err
	}
	return doc, jsonEOF(dec)
}

func parseJSONColumns(data []byte) (Columns, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	cols, err := jsonColumns(dec)
	if err != nil {
		return nil, err
	}
	return cols, jsonEOF(dec)
}

// jsonColumns consumes one {column: constraint} object from the decoder.
func jsonColumns(dec *json.Decoder) (Columns, error) {
	if err := jsonDelim(dec, '{'); err != nil {
		return nil, err
	}
	cols := Columns{}
	for dec.More() {
		name, err := jsonKey(dec)
		if err != nil {
			return nil, err
		}
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("can't read constraint for %q: %w", name, err)
		}
		constraint, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("constraint for %q must be a string, got %v", name, tok)
		}
		cols = append(cols, Column{Name: name, Constraint: constraint})
	}
	if err := jsonDelim(dec, '}'); err != nil {
		return nil, err
	}
	return cols, nil
}

func jsonDelim(dec *json.Decoder, want rune) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("can't read %q: %w", want, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != json.Delim(want) {
		return fmt.Errorf("unexpected %v, want %q", tok, want)
	}
	return nil
}

func jsonKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("can't read key: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("unexpected key token %v", tok)
	}
	return key, nil
}

func jsonEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("trailing data after document")
	}
	return nil
}

// parseYAML walks yaml nodes directly, mapping nodes keep key order.
func parseYAML(data []byte) (Document, error) {
	root, err := yamlRoot(data)
	if err != nil {
		return nil, err
	}

	doc := Document{}
	for i := 0; i < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		db := Database{Name: keyNode.Value}
		if valNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("database %q must be a mapping, line %d", db.Name, valNode.Line)
		}
		for j := 0; j < len(valNode.Content); j += 2 {
			k, v := valNode.Content[j], valNode.Content[j+1]
			if k.Value == attachKey {
				if err = v.Decode(&db.Attach); err != nil {
					return nil, fmt.Errorf("can't parse attach list for %q: %w", db.Name, err)
				}
				continue
			}
			cols, err := yamlColumns(v)
			if err != nil {
				return nil, fmt.Errorf("can't parse table %s.%s: %w", db.Name, k.Value, err)
			}
			db.Tables = append(db.Tables, Table{Name: k.Value, Columns: cols})
		}
		doc = append(doc, db)
	}
	return doc, nil
}

func parseYAMLColumns(data []byte) (Columns, error) {
	root, err := yamlRoot(data)
	if err != nil {
		return nil, err
	}
	return yamlColumns(root)
}

func yamlRoot(data []byte) (*yaml.Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("can't unmarshal yaml: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	node := root.Content[0]
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("top level must be a mapping, line %d", node.Line)
	}
	return node, nil
}

func yamlColumns(node *yaml.Node) (Columns, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("columns must be a mapping, line %d", node.Line)
	}
	cols := Columns{}
	for i := 0; i < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("constraint for %q must be a scalar, line %d", k.Value, v.Line)
		}
		constraint := v.Value
		if v.Tag == "!!null" {
			constraint = "" // a bare "column:" line means no constraint
		}
		cols = append(cols, Column{Name: k.Value, Constraint: constraint})
	}
	return cols, nil
}

// parseTOML unmarshals into maps and sorts names on every level. TOML
// mappings are unordered as parsed; the engine resolves references by name
// at modification time, so creation order doesn't affect validity.
func parseTOML(data []byte) (Document, error) {
	raw := map[string]map[string]any{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("can't unmarshal toml: %w", err)
	}

	doc := Document{}
	for _, dbName := range slices.Sorted(maps.Keys(raw)) {
		db := Database{Name: dbName}
		for _, key := range slices.Sorted(maps.Keys(raw[dbName])) {
			val := raw[dbName][key]
			if key == attachKey {
				list, ok := val.([]any)
				if !ok {
					return nil, fmt.Errorf("attach list for %q must be an array", dbName)
				}
				for _, item := range list {
					name, ok := item.(string)
					if !ok {
						return nil, fmt.Errorf("attach entry %v in %q must be a string", item, dbName)
					}
					db.Attach = append(db.Attach, name)
				}
				continue
			}
			tblMap, ok := val.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("table %s.%s must be a table of constraints", dbName, key)
			}
			cols, err := tomlColumns(tblMap)
			if err != nil {
				return nil, fmt.Errorf("can't parse table %s.%s: %w", dbName, key, err)
			}
			db.Tables = append(db.Tables, Table{Name: key, Columns: cols})
		}
		doc = append(doc, db)
	}
	return doc, nil
}

func parseTOMLColumns(data []byte) (Columns, error) {
	raw := map[string]any{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("can't unmarshal toml: %w", err)
	}
	return tomlColumns(raw)
}

func tomlColumns(m map[string]any) (Columns, error) {
	cols := Columns{}
	for _, name := range slices.Sorted(maps.Keys(m)) {
		constraint, ok := m[name].(string)
		if !ok {
			return nil, fmt.Errorf("constraint for %q must be a string", name)
		}
		cols = append(cols, Column{Name: name, Constraint: constraint})
	}
	return cols, nil
}
