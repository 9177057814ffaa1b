// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

package config

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/sqmidi"
)

// Preset is the work triggered by one note: actions per device, run in
// the order SQ, Kramer, Cameras
type Preset struct {
	SQ      []Action `yaml:"SQ" toml:"SQ"`
	Kramer  []Action `yaml:"Kramer" toml:"Kramer"`
	Cameras []Action `yaml:"Cameras" toml:"Cameras"`
}

// Len returns the number of actions across all devices
func (p Preset) Len() int {
	return len(p.SQ) + len(p.Kramer) + len(p.Cameras)
}

// Presets maps a trigger key (note name such as "C3", or a note number)
// to its preset
type Presets map[string]Preset

// UnmarshalYAML accepts any scalar key, so "C3:" and "60:" both work
func (p *Presets) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*p = Presets{}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: presets must be a mapping", node.Line)
	}
	out := make(Presets, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: preset key must be a note name or number", k.Line)
		}
		var preset Preset
		if err := v.Decode(&preset); err != nil {
			return fmt.Errorf("preset %s: %w", k.Value, err)
		}
		out[k.Value] = preset
	}
	*p = out
	return nil
}

// Lookup finds the preset for a note: by name first ("C3"), then by
// number ("48")
func (p Presets) Lookup(note uint8) (string, Preset, bool) {
	name := sqmidi.NoteName(note)
	if pr, ok := p[name]; ok {
		return name, pr, true
	}
	num := strconv.Itoa(int(note))
	if pr, ok := p[num]; ok {
		return num, pr, true
	}
	return name, Preset{}, false
}

// Names returns the preset keys, sorted by note where the key is a note
func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		ni, ei := sqmidi.ParseNote(names[i])
		nj, ej := sqmidi.ParseNote(names[j])
		switch {
		case ei == nil && ej == nil && ni != nj:
			return ni < nj
		case ei == nil && ej != nil:
			return true
		case ei != nil && ej == nil:
			return false
		}
		return names[i] < names[j]
	})
	return names
}

// Action is one step of a preset, written as a single-key map:
//
//	{RecallScene: 1}
//	{SetMute: [IP1, LR, true]}
type Action struct {
	Command string
	Args    []string
}

func (a Action) String() string {
	if len(a.Args) == 0 {
		return a.Command
	}
	return fmt.Sprintf("%s(%s)", a.Command, strings.Join(a.Args, ", "))
}

// UnmarshalYAML decodes a single-key map whose value is a scalar or a
// list of scalars
func (a *Action) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return fmt.Errorf("line %d: action must be a single-key map like {Route: 3}", node.Line)
	}
	key, val := node.Content[0], node.Content[1]
	if key.Kind != yaml.ScalarNode || key.Value == "" {
		return fmt.Errorf("line %d: action name must be a string", key.Line)
	}
	a.Command = key.Value
	a.Args = nil

	switch val.Kind {
	case yaml.ScalarNode:
		if val.Tag != "!!null" {
			a.Args = []string{val.Value}
		}
	case yaml.SequenceNode:
		for _, item := range val.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: %s arguments must be scalars", item.Line, a.Command)
			}
			a.Args = append(a.Args, item.Value)
		}
	default:
		return fmt.Errorf("line %d: %s arguments must be a value or a list", val.Line, a.Command)
	}
	return nil
}

// UnmarshalTOML decodes an inline table such as { SetMute = ["IP1", "LR", true] }
func (a *Action) UnmarshalTOML(data interface{}) error {
	m, ok := data.(map[string]interface{})
	if !ok || len(m) != 1 {
		return fmt.Errorf("action must be a single-key table like { Route = 3 }")
	}
	for k, v := range m {
		a.Command = k
		a.Args = nil
		switch vv := v.(type) {
		case []interface{}:
			for _, item := range vv {
				s, err := scalarString(item)
				if err != nil {
					return fmt.Errorf("%s: %w", k, err)
				}
				a.Args = append(a.Args, s)
			}
		default:
			s, err := scalarString(vv)
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			a.Args = []string{s}
		}
	}
	return nil
}

func scalarString(v interface{}) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported argument %v (%T)", v, v)
	}
}

// NArgs fails unless the action has at least n arguments
func (a Action) NArgs(n int) error {
	if len(a.Args) < n {
		return fmt.Errorf("%s needs %d argument(s), got %d", a.Command, n, len(a.Args))
	}
	return nil
}

// Int returns argument i as an integer
func (a Action) Int(i int) (int, error) {
	if err := a.NArgs(i + 1); err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(a.Args[i]))
	if err != nil {
		return 0, fmt.Errorf("%s argument %d: %q is not an integer", a.Command, i+1, a.Args[i])
	}
	return n, nil
}

// Float returns argument i as a number
func (a Action) Float(i int) (float64, error) {
	if err := a.NArgs(i + 1); err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(a.Args[i]), 64)
	if err != nil {
		return 0, fmt.Errorf("%s argument %d: %q is not a number", a.Command, i+1, a.Args[i])
	}
	return f, nil
}

// Bool returns argument i as a switch state (true/false, on/off, yes/no, 1/0)
func (a Action) Bool(i int) (bool, error) {
	if err := a.NArgs(i + 1); err != nil {
		return false, err
	}
	b, err := ParseBool(a.Args[i])
	if err != nil {
		return false, fmt.Errorf("%s argument %d: %w", a.Command, i+1, err)
	}
	return b, nil
}

// Str returns argument i, trimmed
func (a Action) Str(i int) (string, error) {
	if err := a.NArgs(i + 1); err != nil {
		return "", err
	}
	return strings.TrimSpace(a.Args[i]), nil
}

// ParseBool accepts true/false, on/off, yes/no and 1/0
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "yes", "1":
		return true, nil
	case "false", "off", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("%q is not on/off", s)
}

// Duration accepts Go duration strings ("500ms") or plain seconds (2.5)
type Duration time.Duration

// Std converts to time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	return d.UnmarshalText([]byte(node.Value))
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// ParseDuration parses "2s", "500ms" or a number of seconds
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("bad duration %q", s)
	}
	return d, nil
}

func splitHostPort(s string) (string, int, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return "", 0, err
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return "", 0, err
	}
	return host, n, nil
}
