// Package postproc implements the aggregation stage that follows a cohort
// of runs: once every member run has reached a terminal state, the results
// of the successful members are collected into an aggregation directory and
// the template's post-processing workflow runs over it.
package postproc

import (
	"sync"
)

// Cohort tracks a fixed set of member runs toward completion. Observe marks
// one member terminal; it reports true exactly once, on the observation
// that completes the set. Membership is fixed at creation, so late runs can
// never re-trigger the aggregation.
type Cohort struct {
	members  map[string]bool
	terminal map[string]bool
	fired    bool
	mutex    sync.Mutex
}

func NewCohort(runIDs []string) *Cohort {
	members := make(map[string]bool, len(runIDs))
	for _, id := range runIDs {
		members[id] = true
	}
	return &Cohort{
		members:  members,
		terminal: make(map[string]bool, len(runIDs)),
	}
}

// Observe records that the given run reached a terminal state. Observations
// of non-members and repeat observations are ignored.
func (c *Cohort) Observe(runID string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !c.members[runID] || c.terminal[runID] {
		return false
	}
	c.terminal[runID] = true
	if c.fired || len(c.terminal) < len(c.members) {
		return false
	}
	c.fired = true
	return true
}

// Complete reports whether the cohort has fired.
func (c *Cohort) Complete() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.fired
}

// Pending returns how many member runs are still active.
func (c *Cohort) Pending() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.members) - len(c.terminal)
}
