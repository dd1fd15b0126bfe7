// Package channelmap translates attribute names between a DCC host's
// conventions and particle channel names. The codecs store names verbatim;
// the mapping is data and lives here.
package channelmap

import (
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Rule pairs one host attribute name with one channel name.
type Rule struct {
	Host    string `yaml:"host"`
	Channel string `yaml:"channel"`
}

type file struct {
	Rules []Rule `yaml:"rules"`
	// Inherit keeps the default rules underneath the loaded ones.
	Inherit *bool `yaml:"inherit"`
}

// Table is a bidirectional name mapping. The zero value maps nothing.
type Table struct {
	toChannel map[string]string
	toHost    map[string]string
	rules     []Rule
}

var defaultRules = []Rule{
	{Host: "P", Channel: "Position"},
	{Host: "v", Channel: "Velocity"},
	{Host: "id", Channel: "ID"},
	{Host: "Cd", Channel: "Color"},
	{Host: "N", Channel: "Normal"},
	{Host: "uv", Channel: "TextureCoord"},
	{Host: "pscale", Channel: "Scale"},
	{Host: "age", Channel: "Age"},
}

// Default returns the built-in table.
func Default() *Table {
	t, _ := New(defaultRules...)
	return t
}

// New builds a table from rules. Later rules override earlier ones for the
// same host or channel name.
func New(rules ...Rule) (*Table, error) {
	t := &Table{
		toChannel: make(map[string]string, len(rules)),
		toHost:    make(map[string]string, len(rules)),
	}
	for i, r := range rules {
		if r.Host == "" || r.Channel == "" {
			return nil, fmt.Errorf("channelmap: rule %d needs both host and channel", i)
		}
		if old, ok := t.toChannel[r.Host]; ok {
			delete(t.toHost, old)
		}
		if old, ok := t.toHost[r.Channel]; ok {
			delete(t.toChannel, old)
		}
		t.toChannel[r.Host] = r.Channel
		t.toHost[r.Channel] = r.Host
	}
	t.rules = append(t.rules, rules...)
	return t, nil
}

// Rules returns the rules the table was built from.
func (t *Table) Rules() []Rule { return append([]Rule(nil), t.rules...) }

// ToChannel maps a host attribute name to a channel name. Names without a
// rule are converted with PRTName.
func (t *Table) ToChannel(host string) string {
	if c, ok := t.toChannel[host]; ok {
		return c
	}
	return PRTName(host)
}

// ToHost maps a channel name back to a host attribute name. Names without a
// rule pass through unchanged.
func (t *Table) ToHost(channel string) string {
	if h, ok := t.toHost[channel]; ok {
		return h
	}
	return channel
}

// PRTName converts a host attribute name to channel naming: the first letter
// is capitalised and the 64-bit id spelling becomes ID.
func PRTName(name string) string {
	if name == "" {
		return name
	}
	if strings.EqualFold(name, "id64") {
		return "ID"
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:]
}

// Parse decodes a YAML table:
//
//	rules:
//	  - host: P
//	    channel: Position
//
// The default rules apply underneath unless inherit is false.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("channelmap: %w", err)
	}
	rules := f.Rules
	if f.Inherit == nil || *f.Inherit {
		rules = append(append([]Rule(nil), defaultRules...), f.Rules...)
	}
	return New(rules...)
}

// Load reads a YAML table from path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("channelmap: %w", err)
	}
	return Parse(data)
}

// Marshal encodes the table's rules as YAML.
func (t *Table) Marshal() ([]byte, error) {
	inherit := false
	return yaml.Marshal(file{Rules: t.rules, Inherit: &inherit})
}
