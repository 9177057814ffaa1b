// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Bucks County Community Church

// Package config loads the avctl configuration file: device addresses,
// timing, outputs and the trigger presets.
//
// YAML is the native format. Files ending in .toml are decoded as TOML with
// the same structure.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/proto3k"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/sqmidi"
	"github.com/BucksCountyCommunityChurch/buckschurch-scripts/pkg/visca"
)

// DefaultFile is used when neither the flag nor EnvFile name a file
const DefaultFile = "listener_config.yaml"

// EnvFile names the environment variable holding the config path
const EnvFile = "MIDI_PRESET_FILE"

// Defaults
const (
	DefaultChannel          = 1
	DefaultReconnectBackoff = Duration(5 * time.Second)
	DefaultMQTTTopic        = "avctl"
	DefaultMQTTClientID     = "avctl"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the whole configuration file
type Config struct {
	Settings Settings `yaml:"config" toml:"config"`
	Presets  Presets  `yaml:"presets" toml:"presets"`

	// Path the file was loaded from
	Path string `yaml:"-" toml:"-"`
}

// Settings is the "config" section
type Settings struct {
	MIDIListener     MIDIListener `yaml:"midi_listener" toml:"midi_listener"`
	SQ               SQ           `yaml:"SQ" toml:"SQ"`
	Kramer           Kramer       `yaml:"Kramer" toml:"Kramer"`
	Cameras          Cameras      `yaml:"Cameras" toml:"Cameras"`
	OSC              OSC          `yaml:"OSC" toml:"OSC"`
	MQTT             MQTT         `yaml:"MQTT" toml:"MQTT"`
	WebSocket        WebSocket    `yaml:"websocket" toml:"websocket"`
	Log              Log          `yaml:"log" toml:"log"`
	ReconnectBackoff Duration     `yaml:"reconnect_backoff" toml:"reconnect_backoff"`
}

// MIDIListener selects which incoming MIDI channel carries triggers
type MIDIListener struct {
	Channel int `yaml:"channel" toml:"channel"`
}

// SQ is the mixer connection
type SQ struct {
	IP           string       `yaml:"ip" toml:"ip"`
	Port         int          `yaml:"port" toml:"port"`
	MIDIChannel  int          `yaml:"midi_channel" toml:"midi_channel"`
	SceneBanking string       `yaml:"scene_banking" toml:"scene_banking"`
	Taper        [][2]float64 `yaml:"taper" toml:"taper"` // [dB, level] anchors; empty uses the SQ default
}

// Banking returns the parsed scene banking convention
func (s SQ) Banking() (sqmidi.SceneBanking, error) {
	return sqmidi.ParseSceneBanking(s.SceneBanking)
}

// TaperTable returns the configured fader taper
func (s SQ) TaperTable() (sqmidi.TaperTable, error) {
	if len(s.Taper) == 0 {
		return sqmidi.DefaultTaper, nil
	}
	points := make([]sqmidi.TaperPoint, len(s.Taper))
	for i, p := range s.Taper {
		points[i] = sqmidi.TaperPoint{DB: p[0], Level: int(p[1])}
	}
	return sqmidi.NewTaperTable(points)
}

// Kramer is the video switcher connection. Serial, when set, is used
// instead of IP.
type Kramer struct {
	IP             string   `yaml:"ip" toml:"ip"`
	Port           int      `yaml:"port" toml:"port"`
	Serial         string   `yaml:"serial" toml:"serial"`
	Baud           int      `yaml:"baud" toml:"baud"`
	Retries        int      `yaml:"retries" toml:"retries"`
	AttemptTimeout Duration `yaml:"attempt_timeout" toml:"attempt_timeout"`
	Settle         Duration `yaml:"settle" toml:"settle"` // negative disables
}

// Enabled reports whether a switcher is configured
func (k Kramer) Enabled() bool {
	return k.IP != "" || k.Serial != ""
}

// Options returns correlator options for the switcher
func (k Kramer) Options() proto3k.Options {
	o := proto3k.DefaultOptions()
	if k.Retries > 0 {
		o.RetryBudget = k.Retries
	}
	if k.AttemptTimeout > 0 {
		o.AttemptTimeout = k.AttemptTimeout.Std()
	}
	switch {
	case k.Settle > 0:
		o.SettleDelay = k.Settle.Std()
	case k.Settle < 0:
		o.SettleDelay = 0
	}
	return o
}

// Cameras is the VISCA camera list
type Cameras struct {
	Port    int      `yaml:"port" toml:"port"`
	Hosts   []string `yaml:"hosts" toml:"hosts"`
	Between Duration `yaml:"between" toml:"between"`
	Timeout Duration `yaml:"timeout" toml:"timeout"`
}

// List returns the configured cameras. A host may carry its own port
// ("10.0.0.5:5679").
func (c Cameras) List() []visca.Camera {
	cams := make([]visca.Camera, 0, len(c.Hosts))
	for _, h := range c.Hosts {
		cam := visca.Camera{Host: h, Port: c.Port}
		if host, port, err := splitHostPort(h); err == nil {
			cam.Host, cam.Port = host, port
		}
		cams = append(cams, cam)
	}
	return cams
}

// OSC is the optional OSC trigger listener
type OSC struct {
	Listen string `yaml:"listen" toml:"listen"`
}

// MQTT is the optional event publisher. The password is never stored in
// the file; it comes from the environment or a prompt.
type MQTT struct {
	Broker   string `yaml:"broker" toml:"broker"`
	Topic    string `yaml:"topic" toml:"topic"`
	ClientID string `yaml:"client_id" toml:"client_id"`
	Username string `yaml:"username" toml:"username"`
	QoS      byte   `yaml:"qos" toml:"qos"`
}

// WebSocket is the optional live event feed
type WebSocket struct {
	Listen string `yaml:"listen" toml:"listen"`
}

// Log configures logging
type Log struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"`
}

// ResolvePath picks the config file: flag value, then $MIDI_PRESET_FILE,
// then DefaultFile
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvFile); env != "" {
		return env
	}
	return DefaultFile
}

// Load reads, parses, defaults and validates a config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Format is a config file syntax
type Format int

// Formats
const (
	FormatYAML Format = iota
	FormatTOML
)

func formatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Parse decodes data, fills defaults and validates
func Parse(data []byte, format Format) (*Config, error) {
	cfg := &Config{}
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	s := &c.Settings
	if s.MIDIListener.Channel == 0 {
		s.MIDIListener.Channel = DefaultChannel
	}
	if s.SQ.Port == 0 {
		s.SQ.Port = sqmidi.DefaultPort
	}
	if s.SQ.MIDIChannel == 0 {
		s.SQ.MIDIChannel = DefaultChannel
	}
	if s.Kramer.Port == 0 {
		s.Kramer.Port = proto3k.DefaultPort
	}
	if s.Kramer.Baud == 0 {
		s.Kramer.Baud = 115200
	}
	if s.Cameras.Port == 0 {
		s.Cameras.Port = visca.DefaultPort
	}
	if s.Cameras.Between == 0 {
		s.Cameras.Between = Duration(visca.DefaultBetween)
	}
	if s.Cameras.Timeout == 0 {
		s.Cameras.Timeout = Duration(visca.DefaultTimeout)
	}
	if s.MQTT.Topic == "" {
		s.MQTT.Topic = DefaultMQTTTopic
	}
	if s.MQTT.ClientID == "" {
		s.MQTT.ClientID = DefaultMQTTClientID
	}
	if s.Log.Level == "" {
		s.Log.Level = "info"
	}
	if s.ReconnectBackoff <= 0 {
		s.ReconnectBackoff = DefaultReconnectBackoff
	}
	if c.Presets == nil {
		c.Presets = Presets{}
	}
}

// Validate reports the first configuration problem found
func (c *Config) Validate() error {
	s := c.Settings

	if s.SQ.IP == "" {
		return fmt.Errorf("%w: 'config.SQ.ip' not set", ErrInvalidConfig)
	}
	if !s.Kramer.Enabled() {
		return fmt.Errorf("%w: 'config.Kramer.ip' not set", ErrInvalidConfig)
	}
	if err := checkChannel("config.midi_listener.channel", s.MIDIListener.Channel); err != nil {
		return err
	}
	if err := checkChannel("config.SQ.midi_channel", s.SQ.MIDIChannel); err != nil {
		return err
	}
	if _, err := s.SQ.Banking(); err != nil {
		return fmt.Errorf("%w: config.SQ.scene_banking: %w", ErrInvalidConfig, err)
	}
	if _, err := s.SQ.TaperTable(); err != nil {
		return fmt.Errorf("%w: config.SQ.taper: %w", ErrInvalidConfig, err)
	}
	if s.MQTT.QoS > 2 {
		return fmt.Errorf("%w: config.MQTT.qos must be 0-2", ErrInvalidConfig)
	}
	return nil
}

func checkChannel(key string, ch int) error {
	if ch < 1 || ch > 16 {
		return fmt.Errorf("%w: %s must be 1-16, got %d", ErrInvalidConfig, key, ch)
	}
	return nil
}
