package kernel

import (
	"reflect"
	"slices"
	"sort"

	"ex-tgbot/pkg/tgbot"
)

// insertSorted inserts handler after every element whose priority is lower or
// equal, so equal priorities keep insertion order. seq must already be sorted
// and must not be shared with readers.
func insertSorted(seq []tgbot.Handler, handler tgbot.Handler) []tgbot.Handler {
	priority := handler.Priority()
	idx := sort.Search(len(seq), func(i int) bool {
		return seq[i].Priority() > priority
	})

	return slices.Insert(seq, idx, handler)
}

// sortHandlers orders an unordered handler set by repeated insertSorted so ties
// resolve exactly like registry registration. Nil entries are dropped and
// counted in skipped.
func sortHandlers(handlers []tgbot.Handler) (sorted []tgbot.Handler, skipped int) {
	sorted = make([]tgbot.Handler, 0, len(handlers))
	for _, handler := range handlers {
		if handler == nil {
			skipped++
			continue
		}
		sorted = insertSorted(sorted, handler)
	}

	return sorted, skipped
}

// mergeHandlers performs a stable two-way merge of two sorted sequences into a
// new slice. On equal priority the scoped handler runs first.
func mergeHandlers(static, scoped []tgbot.Handler) []tgbot.Handler {
	merged := make([]tgbot.Handler, 0, len(static)+len(scoped))

	i, j := 0, 0
	for i < len(static) && j < len(scoped) {
		if scoped[j].Priority() <= static[i].Priority() {
			merged = append(merged, scoped[j])
			j++
			continue
		}
		merged = append(merged, static[i])
		i++
	}
	merged = append(merged, static[i:]...)
	merged = append(merged, scoped[j:]...)

	return merged
}

// sameHandler reports reference identity. Handlers whose dynamic type is not
// comparable never match.
func sameHandler(a, b tgbot.Handler) bool {
	typeA, typeB := reflect.TypeOf(a), reflect.TypeOf(b)
	if typeA != typeB || typeA == nil || !typeA.Comparable() {
		return false
	}

	return a == b
}
