// Package modes defines the focus modes and maps each one to its producer.
package modes

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"searchbot/internal/domain"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Definition describes how a mode searches and answers.
type Definition struct {
	Key            domain.ModeKey `yaml:"key" json:"id"`
	Name           string         `yaml:"name" json:"name"`
	Description    string         `yaml:"description" json:"description"`
	Icon           string         `yaml:"icon" json:"icon"`
	SearchWeb      bool           `yaml:"searchWeb" json:"searchWeb"`
	Engines        []string       `yaml:"engines" json:"engines,omitempty"`
	ResponsePrompt string         `yaml:"responsePrompt" json:"-"`
}

// Defaults returns the built-in definitions in display order.
func Defaults() []Definition {
	var defs []Definition
	if err := yaml.Unmarshal(defaultsYAML, &defs); err != nil {
		panic(fmt.Sprintf("modes: invalid built-in definitions: %v", err))
	}
	return defs
}

// Load returns the built-in definitions with overrides from dir applied.
// Each .yaml/.yml file in dir holds one definition; its key must name a
// known mode. A missing dir is not an error.
func Load(dir string, logger *slog.Logger) ([]Definition, error) {
	defs := Defaults()
	if dir == "" {
		return defs, nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("modes directory does not exist, using defaults", "dir", dir)
		return defs, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read modes dir: %w", err)
	}

	index := make(map[domain.ModeKey]int, len(defs))
	for i, d := range defs {
		index[d.Key] = i
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read mode file", "path", path, "err", err)
			continue
		}

		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			logger.Warn("cannot parse mode file", "path", path, "err", err)
			continue
		}
		key, err := domain.ParseModeKey(string(def.Key))
		if err != nil {
			logger.Warn("skipping mode file", "path", path, "err", err)
			continue
		}
		def.Key = key
		defs[index[key]] = merge(defs[index[key]], def)
		logger.Info("loaded mode override", "mode", key, "path", path)
	}
	return defs, nil
}

// merge overlays the non-empty fields of o onto base. SearchWeb is taken
// from o only when o also sets a prompt, since a bare false is
// indistinguishable from an omitted field.
func merge(base, o Definition) Definition {
	if o.Name != "" {
		base.Name = o.Name
	}
	if o.Description != "" {
		base.Description = o.Description
	}
	if o.Icon != "" {
		base.Icon = o.Icon
	}
	if len(o.Engines) > 0 {
		base.Engines = o.Engines
	}
	if o.ResponsePrompt != "" {
		base.ResponsePrompt = o.ResponsePrompt
		base.SearchWeb = o.SearchWeb
	}
	return base
}
