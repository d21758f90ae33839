package catalog

import (
	"capgen/internal/workspace"
)

// IntentListEntry is one app's row in the aggregated intent list document.
type IntentListEntry struct {
	AppID         string   `json:"app_id"`
	Intents       []string `json:"intents"`
	IntentSummary string   `json:"intent_summary,omitempty"`
}

// ExportIntentDocs writes the aggregated intent documents derived from the
// current snapshot: the full intent list and the intent-to-capability map.
func (c *Catalog) ExportIntentDocs() error {
	snapshot := c.Load()

	var list []IntentListEntry
	methodMap := map[string]map[string]string{}
	for _, appID := range snapshot.Apps() {
		entry := snapshot.apps[appID]
		list = append(list, IntentListEntry{
			AppID:         appID,
			Intents:       append([]string(nil), entry.intents...),
			IntentSummary: entry.summary,
		})
		mapping := make(map[string]string, len(entry.byIntent))
		for intent, name := range entry.byIntent {
			mapping[intent] = name
		}
		methodMap[appID] = mapping
	}

	if err := workspace.WriteJSON(c.layout.IntentListPath(), list); err != nil {
		return err
	}
	return workspace.WriteJSON(c.layout.IntentMethodMapPath(), methodMap)
}
