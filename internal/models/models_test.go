package models

import (
	"errors"
	"testing"

	"github.com/emiliopalmerini/abcsmc/internal/domain"
	"github.com/emiliopalmerini/abcsmc/internal/models/conversion"
)

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != 2 || names[0] != conversion.IrreversibleName || names[1] != conversion.Name {
		t.Errorf("Names() = %v", names)
	}
}

func TestLoad(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			m, prior, err := Load(name, nil)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if m.Name() != name {
				t.Errorf("Name() = %q", m.Name())
			}
			if len(prior) != len(m.Def.EstimatedParameters()) {
				t.Errorf("prior has %d parameters, want %d", len(prior), len(m.Def.EstimatedParameters()))
			}
		})
	}
}

func TestLoad_Unknown(t *testing.T) {
	if _, _, err := Load("nope", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
