package config

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/ini.v1"
)

// iniCodec lets viper read and write the sectioned api.ini format.
// Top-level keys of the default section map to top-level settings and every
// other section becomes a nested map.
type iniCodec struct{}

func (iniCodec) Decode(b []byte, v map[string]any) error {
	f, err := ini.Load(b)
	if err != nil {
		return fmt.Errorf("parse ini: %w", err)
	}

	for _, section := range f.Sections() {
		keys := section.KeysHash()
		if section.Name() == ini.DefaultSection {
			for k, val := range keys {
				v[k] = val
			}
			continue
		}
		m := make(map[string]any, len(keys))
		for k, val := range keys {
			m[k] = val
		}
		v[section.Name()] = m
	}
	return nil
}

func (iniCodec) Encode(v map[string]any) ([]byte, error) {
	f := ini.Empty()

	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		nested, ok := v[name].(map[string]any)
		if !ok {
			if _, err := f.Section("").NewKey(name, fmt.Sprint(v[name])); err != nil {
				return nil, err
			}
			continue
		}
		section, err := f.NewSection(name)
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(nested))
		for k := range nested {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, err := section.NewKey(k, fmt.Sprint(nested[k])); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
