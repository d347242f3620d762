// Package core provides the module system the autoreply runtime is assembled from.
//
// Modules (channels, the HTTP gateway) register themselves from init() and are
// instantiated by ID from the "modules" section of the configuration file.
package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ModuleID identifies a module as "<namespace>.<name>", e.g. "channel.telegram".
type ModuleID string

// Namespace returns the part before the first dot.
func (id ModuleID) Namespace() string {
	ns, _, _ := strings.Cut(string(id), ".")
	return ns
}

// Name returns the part after the first dot, or the whole ID when undotted.
func (id ModuleID) Name() string {
	_, name, found := strings.Cut(string(id), ".")
	if !found {
		return string(id)
	}
	return name
}

// ModuleInfo describes a registered module.
type ModuleInfo struct {
	ID  ModuleID
	New func() Module
}

// Module is implemented by every pluggable component.
type Module interface {
	ModuleInfo() ModuleInfo
}

var (
	registryMu sync.RWMutex
	registry   = make(map[ModuleID]ModuleInfo)
)

// RegisterModule adds a module to the global registry. It panics on an empty
// or duplicate ID and on a nil constructor; call it from init().
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("core: module ID must not be empty")
	case !strings.Contains(string(info.ID), "."):
		panic(fmt.Sprintf("core: module ID %q must be namespaced", info.ID))
	case info.New == nil:
		panic(fmt.Sprintf("core: module %s has no constructor", info.ID))
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[info.ID]; dup {
		panic(fmt.Sprintf("core: module already registered: %s", info.ID))
	}
	registry[info.ID] = info
}

// LookupModule returns the registered ModuleInfo for id.
func LookupModule(id string) (ModuleInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[ModuleID(id)]
	return info, ok
}

// Modules returns every registered module sorted by ID.
func Modules() []ModuleInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]ModuleInfo, 0, len(registry))
	for _, info := range registry {
		out = append(out, info)
	}
	slices.SortFunc(out, func(a, b ModuleInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// resetRegistry clears the registry. Tests only.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[ModuleID]ModuleInfo)
}
