package style

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Hover-in values applied on top of a feature's resolved style.
const (
	HighlightWeight  = 4
	HighlightOpacity = 1
)

// PopupEntry is one key/value line of a feature popup.
type PopupEntry struct {
	Key   string `json:"key" doc:"Property name"`
	Value string `json:"value" doc:"Property value as text"`
}

// Popup lists the properties worth showing for a feature: style keys,
// nulls and empty strings are left out. Entries are sorted by key.
func Popup(props map[string]any) []PopupEntry {
	keys := make([]string, 0, len(props))
	for k, v := range props {
		if IsStyleKey(k) || v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]PopupEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, PopupEntry{Key: k, Value: formatValue(props[k])})
	}
	return entries
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// Highlight returns the hover-in variant of s. The input is not modified;
// hover-out simply reapplies the resolved style.
func Highlight(s Style) Style {
	s.Weight = HighlightWeight
	s.Opacity = HighlightOpacity
	return s
}
