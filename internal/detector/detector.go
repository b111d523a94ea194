// Package detector partitions an extracted batch into new and already-seen items.
package detector

import (
	"github.com/samvad-hq/newswatch/internal/domain"
	"github.com/samvad-hq/newswatch/internal/identity"
)

// Membership answers whether a key was already recorded for a source.
type Membership interface {
	Contains(sourceKey, key string) bool
}

// Candidate is a new item with its resolved dedup key.
type Candidate struct {
	Item domain.Item
	Key  string
}

// Result is the outcome of one detection pass.
type Result struct {
	New        []Candidate
	Seen       int
	Duplicates int
}

// Keys returns the keys of the new candidates in output order.
func (r Result) Keys() []string {
	keys := make([]string, len(r.New))
	for i, c := range r.New {
		keys[i] = c.Key
	}
	return keys
}

// Detect returns the items of batch whose keys are not in set, preserving the
// batch order. Keys repeated within the batch are emitted once. Detect never
// mutates set; the caller commits Result.New afterwards.
func Detect(set Membership, sourceKey string, batch []domain.Item) Result {
	res := Result{New: make([]Candidate, 0, len(batch))}
	pending := make(map[string]struct{}, len(batch))

	for _, item := range batch {
		key := identity.Resolve(item)
		if _, dup := pending[key]; dup {
			res.Duplicates++
			continue
		}
		pending[key] = struct{}{}

		if set != nil && set.Contains(sourceKey, key) {
			res.Seen++
			continue
		}
		item.SourceKey = sourceKey
		res.New = append(res.New, Candidate{Item: item, Key: key})
	}
	return res
}
