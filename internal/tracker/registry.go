package tracker

import (
	"encoding/json"
	"os"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/vector"
)

// registry maps root-relative file paths to the document they produced and the
// file modification time observed when it was last indexed.
type registry map[string]models.RegistryEntry

func loadRegistry(path string) registry {
	reg := registry{}
	data, err := os.ReadFile(path)
	if err != nil {
		return reg
	}
	if err := json.Unmarshal(data, &reg); err != nil {
		// Corrupt registry: start clean and let reconciliation rebuild it.
		return registry{}
	}
	return reg
}

func saveRegistry(path string, reg registry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}
	return vector.WriteFileAtomic(path, data)
}
