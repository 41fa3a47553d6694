package reconcile

import (
	"fmt"
	"time"

	"github.com/clearhaul/fleetcomply/engine/domain"
)

// State is the full serialisable engine state. Export followed by Import is
// lossless: both internal maps travel alongside the vehicles so alias
// resolution and document lookup survive a restart.
type State struct {
	Vehicles      map[string]*domain.VehicleRecord `json:"vehicles"`
	VINAliases    map[string]string                `json:"vin_aliases"`
	DocumentIndex map[string]string                `json:"document_index"`
	Stats         Stats                            `json:"stats"`
	ExportDate    time.Time                        `json:"export_date"`
}

// Export returns a deep copy of the engine state plus a statistics summary.
func (e *Engine) Export() *State {
	stats := e.GetStats()

	e.mu.RLock()
	defer e.mu.RUnlock()

	s := &State{
		Vehicles:      make(map[string]*domain.VehicleRecord, len(e.vehicles)),
		VINAliases:    make(map[string]string, len(e.vinAliases)),
		DocumentIndex: make(map[string]string, len(e.documentIndex)),
		Stats:         stats,
		ExportDate:    e.now().UTC(),
	}
	for vin, v := range e.vehicles {
		s.Vehicles[vin] = cloneVehicle(v)
	}
	for alias, canonical := range e.vinAliases {
		s.VINAliases[alias] = canonical
	}
	for id, vin := range e.documentIndex {
		s.DocumentIndex[id] = vin
	}
	return s
}

// Import replaces the engine state with the given export. A missing alias
// map is tolerated; a missing or inconsistent document index is rebuilt from
// the vehicles themselves.
func (e *Engine) Import(s *State) error {
	if s == nil || s.Vehicles == nil {
		return fmt.Errorf("import: %w: no vehicles", domain.ErrBadStateImport)
	}
	for vin, v := range s.Vehicles {
		if v == nil || v.VIN != vin {
			return fmt.Errorf("import: %w: vehicle keyed %q carries VIN %q", domain.ErrBadStateImport, vin, vehicleVIN(v))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.vehicles = make(map[string]*domain.VehicleRecord, len(s.Vehicles))
	for vin, v := range s.Vehicles {
		e.vehicles[vin] = cloneVehicle(v)
	}

	e.vinAliases = make(map[string]string, len(s.VINAliases))
	for alias, canonical := range s.VINAliases {
		if _, ok := e.vehicles[canonical]; ok {
			e.vinAliases[alias] = canonical
		}
	}

	e.documentIndex = make(map[string]string)
	for vin, v := range e.vehicles {
		for id := range v.Documents {
			e.documentIndex[id] = vin
		}
	}

	e.log.Info("state imported",
		"vehicles", len(e.vehicles),
		"aliases", len(e.vinAliases),
		"documents", len(e.documentIndex),
	)
	return nil
}

func vehicleVIN(v *domain.VehicleRecord) string {
	if v == nil {
		return ""
	}
	return v.VIN
}
