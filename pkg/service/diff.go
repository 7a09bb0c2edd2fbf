package service

// diff returns the ids of desired missing from current and the ids of
// current missing from desired, each in input order and without duplicates.
func diff(current, desired []string) (added, removed []string) {
	have := make(map[string]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	want := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		if _, dup := want[id]; dup {
			continue
		}
		want[id] = struct{}{}
		if _, ok := have[id]; !ok {
			added = append(added, id)
		}
	}
	seen := make(map[string]struct{}, len(current))
	for _, id := range current {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := want[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed
}
