/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: load.go
Description: Loads grammar definitions from YAML files. Productions are written in the
production notation; names declared under terminals are resolved as terminal references.
*/

package grammar

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

type fileDefinition struct {
	Start     string        `yaml:"start"`
	Terminals []TerminalDef `yaml:"terminals"`
	Rules     []RuleSpec    `yaml:"rules"`
}

// LoadDefinition reads a YAML grammar file from fs
func LoadDefinition(fs afero.Fs, path string) (Definition, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to read grammar file: %w", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// ParseDefinition decodes a YAML grammar document
func ParseDefinition(data []byte) (Definition, error) {
	var fd fileDefinition
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return Definition{}, fmt.Errorf("failed to decode grammar: %w", err)
	}
	if fd.Start == "" && len(fd.Rules) > 0 {
		fd.Start = fd.Rules[0].Name
	}

	terms := make(map[string]bool, len(fd.Terminals))
	for _, t := range fd.Terminals {
		terms[t.Name] = true
	}
	isTerminal := func(name string) bool { return terms[name] }

	def := Definition{Start: fd.Start, Terminals: fd.Terminals}
	for _, spec := range fd.Rules {
		r, err := spec.Build(isTerminal)
		if err != nil {
			return Definition{}, err
		}
		def.Rules = append(def.Rules, r)
	}
	return def, nil
}

// EncodeDefinition renders a snapshot as a YAML grammar document
func EncodeDefinition(s *Snapshot) ([]byte, error) {
	fd := fileDefinition{Start: s.Start(), Terminals: s.Terminals()}
	for _, r := range s.Rules() {
		fd.Rules = append(fd.Rules, r.Spec())
	}
	return yaml.Marshal(&fd)
}
