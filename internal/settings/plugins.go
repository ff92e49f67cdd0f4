package settings

import (
	"sort"

	"github.com/tidwall/gjson"
)

// PluginKey returns the settings path for a plugin field, such as
// "plugins.lyrics.enabled".
func PluginKey(id, field string) string {
	return KeyPlugins + "." + id + "." + field
}

// PluginConfigPrefix returns the namespace holding a plugin's own config.
func PluginConfigPrefix(id string) string {
	return PluginKey(id, "config")
}

// PluginEnabled returns the stored enabled flag for id. ok is false if
// nothing is stored.
func (s *Store) PluginEnabled(id string) (enabled, ok bool) {
	r, found := s.Result(PluginKey(id, "enabled"))
	if !found || (r.Type != gjson.True && r.Type != gjson.False) {
		return false, false
	}
	return r.Bool(), true
}

// SetPluginEnabled stores the enabled flag for id.
func (s *Store) SetPluginEnabled(id string, enabled bool) error {
	return s.Set(PluginKey(id, "enabled"), enabled)
}

// EnabledPlugins returns the sorted ids whose enabled flag is true.
func (s *Store) EnabledPlugins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	gjson.Get(s.doc, KeyPlugins).ForEach(func(k, v gjson.Result) bool {
		if v.Get("enabled").Type == gjson.True {
			ids = append(ids, k.String())
		}
		return true
	})
	sort.Strings(ids)
	return ids
}
