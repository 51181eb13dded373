package results

import (
	"sort"
	"sync"

	"github.com/benchflow/benchflow/internal/benchflow/template"
)

// Entry is one scored run on the leaderboard.
type Entry struct {
	RunID      string
	CreatedSeq int64
	Arguments  map[string]string
	Values     map[string]interface{}
}

// Leaderboard ranks scored runs by the template's sort order. A single
// writer adds entries; readers get an independently sorted snapshot, so a
// reader never observes a partially applied update.
type Leaderboard struct {
	order   []template.SortKey
	entries []Entry
	mutex   sync.RWMutex
}

func NewLeaderboard(schema *template.ResultSchema) *Leaderboard {
	return &Leaderboard{order: schema.EffectiveOrder()}
}

// Add records one scored run.
func (l *Leaderboard) Add(entry Entry) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.entries = append(l.entries, entry)
}

// Len returns the number of scored runs.
func (l *Leaderboard) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.entries)
}

// Ranking returns all entries ordered by the sort keys. Runs missing a sort
// value rank below runs that have one regardless of direction; full ties
// resolve by run creation order, so the ranking is deterministic for any
// fixed set of entries.
func (l *Leaderboard) Ranking() []Entry {
	l.mutex.RLock()
	snapshot := make([]Entry, len(l.entries))
	copy(snapshot, l.entries)
	l.mutex.RUnlock()

	sort.SliceStable(snapshot, func(i, j int) bool {
		for _, key := range l.order {
			a, aOK := snapshot[i].Values[key.Name]
			b, bOK := snapshot[j].Values[key.Name]
			if !aOK && !bOK {
				continue
			}
			if aOK != bOK {
				return aOK
			}
			cmp := compare(a, b)
			if cmp == 0 {
				continue
			}
			if key.Descending() {
				return cmp > 0
			}
			return cmp < 0
		}
		return snapshot[i].CreatedSeq < snapshot[j].CreatedSeq
	})
	return snapshot
}

// compare orders two extracted values of the same column. Numeric values
// compare numerically across int and float representations.
func compare(a, b interface{}) int {
	af, aNumeric := asFloat(a)
	bf, bNumeric := asFloat(b)
	if aNumeric && bNumeric {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, aString := a.(string)
	bs, bString := b.(string)
	if aString && bString {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	return 0
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
