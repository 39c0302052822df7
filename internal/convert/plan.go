package convert

import (
	"fmt"
	"sync"

	"github.com/bluehope/mace/internal/irreps"
	"github.com/bluehope/mace/internal/modules"
)

// blockRole identifies one interaction-block position in the correspondence
// table. The first block consumes the embedding layout, later blocks the
// hidden layout; both roles are registered separately so the table stays
// honest when the two layouts diverge.
type blockRole struct {
	Variant modules.InteractionVariant
	First   bool
}

// blockLayout describes the backend-dependent parameters of one block role.
type blockLayout struct {
	HasDensity bool
}

var (
	layoutMu sync.RWMutex
	layouts  = make(map[blockRole]blockLayout)
)

// registerLayout records the parameter layout for one block role. It fails
// when the role is already registered.
func registerLayout(role blockRole, layout blockLayout) error {
	layoutMu.Lock()
	defer layoutMu.Unlock()
	if _, ok := layouts[role]; ok {
		return fmt.Errorf("layout for %s (first=%v) already registered", role.Variant, role.First)
	}
	layouts[role] = layout
	return nil
}

func mustRegisterLayout(role blockRole, layout blockLayout) {
	if err := registerLayout(role, layout); err != nil {
		panic(err)
	}
}

func lookupLayout(role blockRole) (blockLayout, bool) {
	layoutMu.RLock()
	defer layoutMu.RUnlock()
	layout, ok := layouts[role]
	return layout, ok
}

func init() {
	for _, variant := range modules.Variants() {
		density := variant == modules.VariantDensity
		mustRegisterLayout(blockRole{Variant: variant, First: true}, blockLayout{HasDensity: density})
		mustRegisterLayout(blockRole{Variant: variant, First: false}, blockLayout{HasDensity: density})
	}
}

// Available reports whether models of the given backend can be conversion
// targets. The generic backend always is; the fused backend is available
// when every interaction variant has a registered layout.
func Available(backend modules.Backend) bool {
	switch backend {
	case modules.BackendGeneric:
		return true
	case modules.BackendFused:
		for _, variant := range modules.Variants() {
			if _, ok := lookupLayout(blockRole{Variant: variant, First: true}); !ok {
				return false
			}
			if _, ok := lookupLayout(blockRole{Variant: variant, First: false}); !ok {
				return false
			}
		}
		return true
	}
	return false
}

// rule maps one or more generic-side parameters onto one fused-side
// parameter. Identity rules have a single generic key and the same fused
// key.
type rule struct {
	genericKeys []string
	fusedKey    string
	transform   PackTransform
}

func sharedRule(key string) rule {
	return rule{genericKeys: []string{key}, fusedKey: key, transform: identity{}}
}

// buildPlan derives the full parameter correspondence from the static
// structure. It depends only on the config, never on tensor values.
func buildPlan(cfg modules.Config) ([]rule, error) {
	hidden, err := irreps.Parse(cfg.HiddenIrreps)
	if err != nil {
		return nil, err
	}
	k := hidden.ScalarChannels()

	plan := []rule{
		sharedRule("node_embedding.weight"),
		sharedRule("radial_embedding.frequencies"),
	}

	for i := 0; i < cfg.NumInteractions; i++ {
		variant := cfg.Interaction
		if i == 0 {
			variant = cfg.InteractionFirst
		}
		layout, ok := lookupLayout(blockRole{Variant: variant, First: i == 0})
		if !ok {
			return nil, fmt.Errorf("%w: no layout for variant %q", ErrBackendUnavailable, variant)
		}

		plan = append(plan,
			sharedRule(fmt.Sprintf("interactions.%d.linear_up", i)),
			sharedRule(fmt.Sprintf("interactions.%d.radial.0", i)),
			sharedRule(fmt.Sprintf("interactions.%d.radial.1", i)),
			sharedRule(fmt.Sprintf("interactions.%d.radial.2", i)),
			sharedRule(fmt.Sprintf("interactions.%d.linear_down", i)),
		)

		skipKeys := make([]string, cfg.NumElements)
		for e := range skipKeys {
			skipKeys[e] = fmt.Sprintf("interactions.%d.skip.%d", i, e)
		}
		plan = append(plan, rule{
			genericKeys: skipKeys,
			fusedKey:    fmt.Sprintf("interactions.%d.skip_packed", i),
			transform:   rowPack{blocks: cfg.NumElements, rows: k, cols: k},
		})

		if layout.HasDensity {
			plan = append(plan, rule{
				genericKeys: []string{fmt.Sprintf("interactions.%d.density", i)},
				fusedKey:    fmt.Sprintf("interactions.%d.density_packed", i),
				transform:   transposePack{rows: cfg.NumElements, cols: cfg.NumBessel},
			})
		}

		orderKeys := make([]string, cfg.Correlation)
		for o := range orderKeys {
			orderKeys[o] = fmt.Sprintf("products.%d.weight.%d", i, o)
		}
		plan = append(plan, rule{
			genericKeys: orderKeys,
			fusedKey:    fmt.Sprintf("products.%d.weight_packed", i),
			transform:   interleavePack{channels: k, orders: cfg.Correlation},
		})
		plan = append(plan, sharedRule(fmt.Sprintf("products.%d.linear", i)))

		if i == cfg.NumInteractions-1 {
			plan = append(plan,
				sharedRule(fmt.Sprintf("readouts.%d.hidden", i)),
				sharedRule(fmt.Sprintf("readouts.%d.out", i)),
			)
		} else {
			plan = append(plan, sharedRule(fmt.Sprintf("readouts.%d.weight", i)))
		}
	}

	return plan, nil
}
