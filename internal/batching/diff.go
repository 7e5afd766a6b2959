package batching

import "sort"

// DiffReactions finds the reactor whose counts grew between two versions of
// a photo's reactions map and returns that reactor's positive per-emoji
// deltas. Reactors are visited in id order and the first one with any
// increase is returned; other reactors changed in the same update are not
// attributed.
func DiffReactions(before, after map[string]map[string]int) (string, map[string]int, bool) {
	reactors := make([]string, 0, len(after))
	for reactorID := range after {
		reactors = append(reactors, reactorID)
	}
	sort.Strings(reactors)

	for _, reactorID := range reactors {
		prev := before[reactorID]
		diff := make(map[string]int)
		for emoji, n := range after[reactorID] {
			if delta := n - prev[emoji]; delta > 0 {
				diff[emoji] = delta
			}
		}
		if len(diff) > 0 {
			return reactorID, diff, true
		}
	}
	return "", nil, false
}

// NewlyTagged returns ids present in after but not in before, in the order
// they appear in after, capped at MaxTagsPerBatch.
func NewlyTagged(before, after []string) []string {
	had := make(map[string]bool, len(before))
	for _, id := range before {
		had[id] = true
	}
	var added []string
	for _, id := range after {
		if id == "" || had[id] {
			continue
		}
		had[id] = true
		added = append(added, id)
		if len(added) == MaxTagsPerBatch {
			break
		}
	}
	return added
}
