package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// LoadWithWarnings parses a JSON document and returns any unknown field warnings.
func LoadWithWarnings(path string, data []byte) (*Config, []string, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	warnings := detectUnknownFields(data)

	return &cfg, warnings, nil
}

// detectUnknownFields compares raw JSON with known struct fields, descending
// into nested sections and lists of sections.
// Note: Since this is called after successful Config parsing, a parse failure
// here would indicate an unexpected internal inconsistency.
func detectUnknownFields(data []byte) []string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return []string{"internal: failed to re-parse config for unknown field detection"}
	}

	var warnings []string
	walkUnknown(raw, reflect.TypeOf(Config{}), "", &warnings)
	sort.Strings(warnings)
	return warnings
}

func walkUnknown(raw map[string]json.RawMessage, t reflect.Type, path string, warnings *[]string) {
	fields := getJSONFields(t)
	for key, value := range raw {
		if path == "" && key == "$schema" {
			continue // $schema is explicitly allowed and ignored
		}
		field, ok := fields[key]
		if !ok {
			if path == "" {
				*warnings = append(*warnings, fmt.Sprintf("unknown field %q at root level (ignored)", key))
			} else {
				*warnings = append(*warnings, fmt.Sprintf("unknown field %q in %s (ignored)", key, path))
			}
			continue
		}

		child := qualify(path, key)
		ft := field.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}

		switch ft.Kind() {
		case reflect.Struct:
			var nested map[string]json.RawMessage
			if err := json.Unmarshal(value, &nested); err == nil {
				walkUnknown(nested, ft, child, warnings)
			}
		case reflect.Slice:
			elem := ft.Elem()
			if elem.Kind() != reflect.Struct {
				continue
			}
			var items []map[string]json.RawMessage
			if err := json.Unmarshal(value, &items); err != nil {
				continue
			}
			for i, item := range items {
				walkUnknown(item, elem, fmt.Sprintf("%s[%d]", child, i), warnings)
			}
		}
	}
}

func qualify(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// getJSONFields returns the struct fields of t keyed by their JSON name.
func getJSONFields(t reflect.Type) map[string]reflect.StructField {
	fields := make(map[string]reflect.StructField)
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		if name != "" {
			fields[name] = field
		}
	}
	return fields
}
