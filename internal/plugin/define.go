package plugin

import (
	"github.com/alumet-io/alumet/pkg/plugin"
)

// Descriptor wraps a plugin.Plugin with the dependency metadata the
// registry needs to compute a deterministic load order. pkg/plugin.Plugin
// itself carries no notion of inter-plugin dependencies or health, keeping
// the interface plugin authors implement minimal; those concerns are
// layered on here instead.
type Descriptor struct {
	Plugin       plugin.Plugin
	Dependencies []string
}

// HealthChecker is an optional capability a plugin may implement to
// participate in the manager's periodic health checks. A plugin that
// doesn't implement it is treated as always healthy once started.
type HealthChecker interface {
	Health() error
}
