package channel

import (
	_ "embed"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// IdentityReader reads the identity tag stored on the module fitted in a slot
// (0-based slot index).
type IdentityReader interface {
	ReadModuleID(slot int) (uint16, error)
}

type ModuleType string

const (
	ModuleTypeNone   ModuleType = "none"
	ModuleTypeDCP405 ModuleType = "dcp405"
	ModuleTypeDCP505 ModuleType = "dcp505"
	ModuleTypeDCM220 ModuleType = "dcm220"
)

// Module describes the hardware fitted in a slot. ModuleNone is a valid, inert
// configuration: empty slots and unrecognised tags both map to it.
type Module struct {
	ID            uint16     `yaml:"id"`
	Type          ModuleType `yaml:"type"`
	BoardRevision string     `yaml:"board_revision"`
	VoltageMax    float64    `yaml:"u_max"`
	CurrentMax    float64    `yaml:"i_max"`
	CurrentMin    float64    `yaml:"i_min"`
}

var ModuleNone = Module{Type: ModuleTypeNone, BoardRevision: "none"}

func (m Module) Present() bool {
	return m.Type != ModuleTypeNone
}

//go:embed modules.yaml
var defaultModulesYAML []byte

type Table map[uint16]Module

func ParseTable(data []byte) (Table, error) {
	var doc struct {
		Modules []Module `yaml:"modules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse module table: %w", err)
	}
	t := make(Table, len(doc.Modules))
	for _, m := range doc.Modules {
		if _, dup := t[m.ID]; dup {
			return nil, fmt.Errorf("module id %d listed twice", m.ID)
		}
		t[m.ID] = m
	}
	return t, nil
}

// DefaultTable is the built-in module identity table.
func DefaultTable() Table {
	t, err := ParseTable(defaultModulesYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// Identify maps the tag read from a slot to a module. Read failures and
// unknown tags degrade to ModuleNone.
func (t Table) Identify(r IdentityReader, slot int) Module {
	if r == nil {
		return ModuleNone
	}
	id, err := r.ReadModuleID(slot)
	if err != nil {
		log.Warn().Err(err).Int("slot", slot+1).Msg("Could not read module identity, treating slot as empty")
		return ModuleNone
	}
	m, ok := t[id]
	if !ok {
		log.Warn().Int("slot", slot+1).Uint16("module_id", id).Msg("Unknown module identity, treating slot as empty")
		return ModuleNone
	}
	return m
}
