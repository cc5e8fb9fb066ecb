// Package reconcile provides set arithmetic over identifier lists.
// Used by the wishlist synchronizer to compute the delta between the local
// set and the remote record, and to apply outbox operations in a stable order.
// All functions preserve first-seen order and drop duplicates.
package reconcile

// IDDiff describes how two identifier sets differ.
type IDDiff struct {
	LocalOnly  []string // In local but not remote: candidates to push
	RemoteOnly []string // In remote but not local: candidates to pull
	Both       []string
}

// IsEmpty returns true if both sides hold the same identifiers.
func (d *IDDiff) IsEmpty() bool {
	return len(d.LocalOnly) == 0 && len(d.RemoteOnly) == 0
}

// DiffIDs computes the delta between the local and remote identifier sets.
// Output slices follow the order of their source list.
func DiffIDs(local, remote []string) *IDDiff {
	diff := &IDDiff{}

	localSet := toSet(local)
	remoteSet := toSet(remote)

	for _, id := range Dedupe(local) {
		if remoteSet[id] {
			diff.Both = append(diff.Both, id)
		} else {
			diff.LocalOnly = append(diff.LocalOnly, id)
		}
	}
	for _, id := range Dedupe(remote) {
		if !localSet[id] {
			diff.RemoteOnly = append(diff.RemoteOnly, id)
		}
	}

	return diff
}

// Union returns every identifier in a followed by those in b not already seen.
func Union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Subtract returns identifiers of a that are not in b.
func Subtract(a, b []string) []string {
	drop := toSet(b)
	out := make([]string, 0, len(a))
	for _, id := range Dedupe(a) {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}

// Dedupe removes duplicates and empty identifiers, keeping first occurrence.
func Dedupe(ids []string) []string {
	return Union(ids, nil)
}

// Contains reports whether id is in ids.
func Contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
