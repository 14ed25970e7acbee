package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Field describes one scalar setting, read from struct tags.
type Field struct {
	Key      string // e.g. "api.base_url"
	Default  string
	Desc     string
	Min      int // 0 = no limit
	Max      int // 0 = no limit
	Type     string
	Category string
}

var (
	fieldsOnce  sync.Once
	fieldsCache []Field
)

// Fields returns every settable key, sorted.
func Fields() []Field {
	fieldsOnce.Do(func() {
		t := reflect.TypeOf(Config{})
		for i := 0; i < t.NumField(); i++ {
			section := t.Field(i)
			prefix := section.Tag.Get("toml")
			if section.Type.Kind() != reflect.Struct || prefix == "" {
				continue
			}
			fieldsCache = append(fieldsCache, sectionFields(section.Type)...)
		}
		sort.Slice(fieldsCache, func(i, j int) bool {
			return fieldsCache[i].Key < fieldsCache[j].Key
		})
	})
	return fieldsCache
}

func sectionFields(t reflect.Type) []Field {
	var out []Field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		key := sf.Tag.Get("config")
		if key == "" {
			continue
		}
		f := Field{
			Key:      key,
			Default:  sf.Tag.Get("default"),
			Desc:     sf.Tag.Get("desc"),
			Type:     sf.Type.Kind().String(),
			Category: strings.SplitN(key, ".", 2)[0],
		}
		if v := sf.Tag.Get("min"); v != "" {
			f.Min, _ = strconv.Atoi(v)
		}
		if v := sf.Tag.Get("max"); v != "" {
			f.Max, _ = strconv.Atoi(v)
		}
		out = append(out, f)
	}
	return out
}

// ListKeys returns all settable keys.
func ListKeys() []string {
	fields := Fields()
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	return keys
}

func findField(key string) (Field, bool) {
	for _, f := range Fields() {
		if f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// lookup returns the struct field behind key.
func lookup(cfg *Config, key string) (reflect.Value, error) {
	section, _, ok := strings.Cut(key, ".")
	if !ok {
		return reflect.Value{}, fmt.Errorf("invalid config key format: %s", key)
	}

	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	var sv reflect.Value
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("toml") == section {
			sv = v.Field(i)
			break
		}
	}
	if !sv.IsValid() || sv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("unknown config section: %s", section)
	}

	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		if st.Field(i).Tag.Get("config") == key {
			return sv.Field(i), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("unknown config key: %s", key)
}

func getFieldValue(cfg *Config, key string) (string, bool) {
	fv, err := lookup(cfg, key)
	if err != nil {
		return "", false
	}
	switch fv.Kind() {
	case reflect.String:
		return fv.String(), true
	case reflect.Int:
		return strconv.FormatInt(fv.Int(), 10), true
	case reflect.Bool:
		return strconv.FormatBool(fv.Bool()), true
	}
	return "", false
}

func setFieldValue(cfg *Config, key, value string) error {
	field, ok := findField(key)
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	fv, err := lookup(cfg, key)
	if err != nil {
		return err
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		fv.SetBool(b)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value: %s", value)
		}
		if field.Min != 0 && n < field.Min {
			return fmt.Errorf("value %d is below minimum %d", n, field.Min)
		}
		if field.Max != 0 && n > field.Max {
			return fmt.Errorf("value %d exceeds maximum %d", n, field.Max)
		}
		fv.SetInt(int64(n))
	default:
		return fmt.Errorf("config key %s cannot be set from the command line", key)
	}
	return nil
}

// HelpText lists every key with its description, grouped by section.
func HelpText() string {
	var sb strings.Builder

	byCategory := make(map[string][]Field)
	for _, f := range Fields() {
		byCategory[f.Category] = append(byCategory[f.Category], f)
	}

	categories := []struct {
		key   string
		title string
	}{
		{"core", "Views"},
		{"api", "REST backend"},
		{"database", "Postgres backend"},
		{"session", "Session"},
		{"ui", "Terminal"},
	}

	for _, cat := range categories {
		fields := byCategory[cat.key]
		if len(fields) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "  %s:\n", cat.title)
		for _, f := range fields {
			def := ""
			if f.Default != "" {
				def = fmt.Sprintf(" (default: %s)", f.Default)
			}
			fmt.Fprintf(&sb, "    %-28s %s%s\n", f.Key, f.Desc, def)
		}
		sb.WriteString("\n")
	}

	return strings.TrimSuffix(sb.String(), "\n")
}
