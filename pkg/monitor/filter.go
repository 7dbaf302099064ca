package monitor

import (
	"igmonitor/pkg/models"
	"igmonitor/pkg/state"
)

// FilterNew returns the items not yet marked seen for the account, in input
// order. The result reflects the store at call time; callers must not mutate
// state while consuming one pass. When max > 0 it caps the number of items
// AFTER filtering, so already-seen items never count against the cap.
func FilterNew(store *state.Store, username string, items []models.ContentItem, max int) []models.ContentItem {
	var fresh []models.ContentItem
	for _, item := range items {
		if !store.IsNew(username, item.Kind, item.ID) {
			continue
		}
		fresh = append(fresh, item)
		if max > 0 && len(fresh) >= max {
			break
		}
	}
	return fresh
}
