package shared

import "sort"

// LineKey identifies the unit of contention for stock movements: one
// inventory line per (branch, product).
type LineKey struct {
	BranchID  int64
	ProductID int64
}

// Less orders keys by branch then product.
func (k LineKey) Less(other LineKey) bool {
	if k.BranchID != other.BranchID {
		return k.BranchID < other.BranchID
	}
	return k.ProductID < other.ProductID
}

// SortLineKeys deduplicates and canonically orders line keys. Every
// multi-line operation acquires row locks in this order so two movements
// touching the same lines in opposite directions cannot deadlock.
func SortLineKeys(keys []LineKey) []LineKey {
	seen := make(map[LineKey]struct{}, len(keys))
	out := make([]LineKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
