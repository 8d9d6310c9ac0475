package systems

import (
	"github.com/cmgoffena13/file-loader/internal/sources"
)

// MasterRegistry builds the process-wide registry of every configured
// source.
func MasterRegistry() (*sources.Registry, error) {
	return sources.NewRegistry(
		Sales,
		Customers,
		Inventory,
	)
}
