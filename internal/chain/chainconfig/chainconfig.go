// Package chainconfig loads the ordered module chain from a YAML file.
//
// Each module's `config` block is decoded into the typed config its
// AuthType registers and validated before any module is built, so a
// malformed chain fails at startup.
package chainconfig

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"authchain/internal/chain/authtype"
	dErrors "authchain/pkg/domain-errors"
)

type file struct {
	DefaultLevels []string       `yaml:"default_levels"`
	Modules       []moduleConfig `yaml:"modules"`
}

type moduleConfig struct {
	ID                 string    `yaml:"id"`
	Type               string    `yaml:"type"`
	Order              int       `yaml:"order"`
	Level              string    `yaml:"level"`
	Active             *bool     `yaml:"active"`
	RememberAlways     bool      `yaml:"remember_always"`
	RememberForSession bool      `yaml:"remember_for_session"`
	Config             yaml.Node `yaml:"config"`
}

// Chain is the configured module sequence, sorted by (Order, ID).
type Chain struct {
	modules       []*authtype.Module
	byID          map[string]*authtype.Module
	defaultLevels []string
}

// New builds a chain from already constructed modules.
func New(modules []*authtype.Module, defaultLevels []string) (*Chain, error) {
	c := &Chain{byID: make(map[string]*authtype.Module, len(modules))}
	for _, m := range modules {
		if m.ID == "" {
			return nil, errors.New("module id is required")
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate module id %q", m.ID)
		}
		if m.Level == "" {
			return nil, fmt.Errorf("module %q: level is required", m.ID)
		}
		if m.AuthType == nil {
			return nil, fmt.Errorf("module %q: auth type is required", m.ID)
		}
		c.byID[m.ID] = m
		c.modules = append(c.modules, m)
	}
	sort.SliceStable(c.modules, func(i, j int) bool {
		if c.modules[i].Order != c.modules[j].Order {
			return c.modules[i].Order < c.modules[j].Order
		}
		return c.modules[i].ID < c.modules[j].ID
	})
	c.defaultLevels = append([]string(nil), defaultLevels...)
	if len(c.defaultLevels) == 0 {
		c.defaultLevels = c.Levels()
	}
	return c, nil
}

// Load reads and builds the chain at path.
func Load(path string, registry *authtype.Registry, deps authtype.Dependencies) (*Chain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain config: %w", err)
	}
	return Parse(data, registry, deps)
}

// Parse builds a chain from YAML.
func Parse(data []byte, registry *authtype.Registry, deps authtype.Dependencies) (*Chain, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "parse chain config")
	}
	if len(f.Modules) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "chain config declares no modules")
	}

	modules := make([]*authtype.Module, 0, len(f.Modules))
	for i, mc := range f.Modules {
		m, err := buildModule(mc, registry, deps)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, fmt.Sprintf("module %d", i))
		}
		modules = append(modules, m)
	}
	return New(modules, f.DefaultLevels)
}

func buildModule(mc moduleConfig, registry *authtype.Registry, deps authtype.Dependencies) (*authtype.Module, error) {
	mc.ID = strings.TrimSpace(mc.ID)
	if mc.ID == "" {
		return nil, errors.New("id is required")
	}
	factory, err := registry.Lookup(mc.Type)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mc.ID, err)
	}
	cfg := factory.NewConfig()
	if !mc.Config.IsZero() {
		if err := mc.Config.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%s: decode config: %w", mc.ID, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", mc.ID, err)
	}
	at, err := factory.Build(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("%s: build: %w", mc.ID, err)
	}
	active := mc.Active == nil || *mc.Active
	return &authtype.Module{
		ID:                 mc.ID,
		Type:               mc.Type,
		Order:              mc.Order,
		Level:              strings.TrimSpace(mc.Level),
		Active:             active,
		RememberAlways:     mc.RememberAlways,
		RememberForSession: mc.RememberForSession,
		AuthType:           at,
	}, nil
}

// Modules returns the modules in dispatch order.
func (c *Chain) Modules() []*authtype.Module {
	return c.modules
}

// Module looks up a module by id.
func (c *Chain) Module(moduleID string) (*authtype.Module, bool) {
	m, ok := c.byID[moduleID]
	return m, ok
}

// Levels lists the distinct levels offered by active modules, in chain order.
func (c *Chain) Levels() []string {
	seen := map[string]bool{}
	var levels []string
	for _, m := range c.modules {
		if !m.Active || seen[m.Level] {
			continue
		}
		seen[m.Level] = true
		levels = append(levels, m.Level)
	}
	return levels
}

// DefaultLevels are requested when the inbound protocol request names none.
func (c *Chain) DefaultLevels() []string {
	return append([]string(nil), c.defaultLevels...)
}

// Offers reports whether some active module provides level.
func (c *Chain) Offers(level string) bool {
	for _, m := range c.modules {
		if m.Active && m.Level == level {
			return true
		}
	}
	return false
}
