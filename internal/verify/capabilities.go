package verify

import (
	"github.com/bluehope/mace/internal/convert"
	"github.com/bluehope/mace/internal/modules"
)

// Capabilities reports which backends this build can construct and convert
// to. Callers check it before requesting a fused run instead of relying on
// a conversion error.
type Capabilities struct {
	Generic bool `json:"generic"`
	Fused   bool `json:"fused"`
}

// Capability queries the conversion layer for backend availability.
func Capability() Capabilities {
	return Capabilities{
		Generic: convert.Available(modules.BackendGeneric),
		Fused:   convert.Available(modules.BackendFused),
	}
}
