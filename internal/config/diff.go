package config

import "reflect"

// ChangedSections lists top-level sections that differ between two configs.
// Secrets are never compared by value in log output; callers only get names.
func ChangedSections(oldCfg, newCfg *Config) []string {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var out []string
	add := func(name string, a, b any) {
		if !reflect.DeepEqual(a, b) {
			out = append(out, name)
		}
	}
	oldTG, newTG := oldCfg.Telegram, newCfg.Telegram
	add("owners", oldTG.OwnerUserIDs, newTG.OwnerUserIDs)
	oldTG.OwnerUserIDs, newTG.OwnerUserIDs = nil, nil
	add("telegram", oldTG, newTG)
	add("tmdb", oldCfg.TMDB, newCfg.TMDB)
	add("categories", oldCfg.Categories, newCfg.Categories)
	add("schedule", oldCfg.Schedule, newCfg.Schedule)
	add("publish", oldCfg.Publish, newCfg.Publish)
	add("health", oldCfg.Health, newCfg.Health)
	add("storage", oldCfg.Storage, newCfg.Storage)
	add("logging", oldCfg.Logging, newCfg.Logging)
	return out
}

// LiveSections are applied without a restart.
var LiveSections = map[string]bool{"logging": true, "owners": true}
