package override

import "sort"

func scopeRank(s Scope) int {
	switch s {
	case ScopeUser:
		return 3
	case ScopeAllUsers:
		return 2
	case ScopeGlobal:
		return 1
	}
	return 0
}

// outranks reports whether a wins over b during resolution. The comparison
// chain is a strict total order: an explicit priority beats no priority and
// higher beats lower; then member-targeted scope beats allUsers beats global;
// then creator role rank; then newer creation time; the rule ID breaks any
// remaining tie so the winner never depends on input order.
func outranks(a, b Rule) bool {
	if (a.Priority != nil) != (b.Priority != nil) {
		return a.Priority != nil
	}
	if a.Priority != nil && *a.Priority != *b.Priority {
		return *a.Priority > *b.Priority
	}
	if ra, rb := scopeRank(a.Scope), scopeRank(b.Scope); ra != rb {
		return ra > rb
	}
	if ra, rb := a.CreatorRole.Rank(), b.CreatorRole.Rank(); ra != rb {
		return ra > rb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortForResolution orders rules strongest first. The first element of a
// sorted non-empty slice is the rule whose action decides the day.
func SortForResolution(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool {
		return outranks(rules[i], rules[j])
	})
}
