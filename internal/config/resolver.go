package config

import "slices"

// ChannelModule is loaded even when the modules section does not name it.
const ChannelModule = "channel.telegram"

// Resolve returns a sorted list of module IDs from the configuration,
// always including the Telegram channel.
// The deterministic order ensures consistent module loading.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules)+1)
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	if _, ok := cfg.Modules[ChannelModule]; !ok {
		ids = append(ids, ChannelModule)
	}
	slices.Sort(ids)
	return ids
}
