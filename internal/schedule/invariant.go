package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"ontime/internal/domain"
)

// Violation describes a task or entry breaking "scheduled iff exactly one entry".
type Violation struct {
	TaskID  string
	Status  domain.Status
	Entries []string
	Reason  string
}

func (v Violation) String() string {
	return fmt.Sprintf("task %s (%s, %d entries): %s", v.TaskID, v.Status, len(v.Entries), v.Reason)
}

const (
	ReasonScheduledNoEntry = "scheduled without entry"
	ReasonEntryNotSched    = "has entry but not scheduled"
	ReasonMultipleEntries  = "more than one entry"
	ReasonOrphanEntry      = "entry references unknown task"
)

// CheckInvariant compares the local collections and reports every violation,
// ordered by task id.
func (c *Coordinator) CheckInvariant() []Violation {
	tasks := c.tasks.Tasks()
	byTask := map[string][]string{}
	for _, e := range c.entries.Entries() {
		byTask[e.TaskID] = append(byTask[e.TaskID], e.ID)
	}

	var out []Violation
	known := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		known[t.ID] = struct{}{}
		ids := byTask[t.ID]
		v := Violation{TaskID: t.ID, Status: t.Status, Entries: ids}
		switch {
		case len(ids) > 1:
			v.Reason = ReasonMultipleEntries
		case t.Status == domain.StatusScheduled && len(ids) == 0:
			v.Reason = ReasonScheduledNoEntry
		case t.Status != domain.StatusScheduled && len(ids) == 1:
			v.Reason = ReasonEntryNotSched
		default:
			continue
		}
		out = append(out, v)
	}
	for taskID, ids := range byTask {
		if _, ok := known[taskID]; !ok {
			out = append(out, Violation{TaskID: taskID, Entries: ids, Reason: ReasonOrphanEntry})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// Repair fixes the violations that have a single obvious resolution: a
// scheduled task without an entry goes back to backlog, and a backlog task with
// exactly one entry becomes scheduled. Other violations are left for the user.
// It returns the number of tasks repaired.
func (c *Coordinator) Repair(ctx context.Context) (int, error) {
	scopeID := c.scope.Active()
	if scopeID == "" {
		return 0, domain.NewMissingScope("repair")
	}
	var (
		fixed int
		errs  []error
	)
	for _, v := range c.CheckInvariant() {
		var to domain.Status
		switch {
		case v.Reason == ReasonScheduledNoEntry:
			to = domain.StatusBacklog
		case v.Reason == ReasonEntryNotSched && v.Status == domain.StatusBacklog:
			to = domain.StatusScheduled
		default:
			continue
		}
		if !c.claim(v.TaskID) {
			continue
		}
		err := c.tasks.Update(ctx, scopeID, v.TaskID, domain.TaskFields{}.WithStatus(to))
		c.release(v.TaskID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fixed++
	}
	if fixed > 0 {
		c.Reload(ctx)
	}
	return fixed, errors.Join(errs...)
}
