package catalog

import (
	"strings"

	"cajapos/backend/internal/cart"
)

// Search filters the snapshot by a case-insensitive match on name or id. An
// empty query returns everything.
func Search(s *Snapshot, query string) []cart.Item {
	if s == nil {
		return nil
	}
	items := s.Items()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return items
	}

	matched := items[:0]
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), q) || strings.Contains(strings.ToLower(item.ID), q) {
			matched = append(matched, item)
		}
	}
	return matched
}
