package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable modules receive their raw "modules.<id>" YAML node right after
// construction. Modules without a config section are not called.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner modules apply defaults and resolve services from the AppContext.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator modules check their final configuration. Validate must not have
// side effects.
type Validator interface {
	Validate() error
}

// Starter modules launch background work (pollers, listeners).
type Starter interface {
	Start() error
}

// Stopper modules release resources. Stop is called in reverse start order.
type Stopper interface {
	Stop(ctx context.Context) error
}
