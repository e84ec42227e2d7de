// Package schedule keeps exactly one recurring recompute trigger installed
// in the external job scheduler.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
)

var ErrInvalidRule = errors.New("invalid recurrence rule")

// SchedulerError wraps a failed scheduler call made during reconciliation
type SchedulerError struct {
	Op  string
	Err error
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("scheduler %s: %v", e.Op, e.Err)
}

func (e *SchedulerError) Unwrap() error {
	return e.Err
}

// Outcome describes what reconciliation did
type Outcome int

const (
	Unchanged Outcome = iota
	Updated
	Created
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	case Created:
		return "created"
	default:
		return "unknown"
	}
}

// Reconciler creates or updates the recurring job owned by this instance
type Reconciler struct {
	scheduler Scheduler
	ids       IDStore
	logger    *slog.Logger
}

// NewReconciler creates a reconciler. ids may be nil, in which case the
// created job id is only logged.
func NewReconciler(s Scheduler, ids IDStore, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		scheduler: s,
		ids:       ids,
		logger:    logger.With("component", "reconciler"),
	}
}

// Reconcile makes the scheduler hold exactly one job for this instance that
// matches desired. A matching job is preferred as the one to keep and any
// other job of this instance is deleted. Running it again against an
// up-to-date scheduler issues no mutating call. Failures are returned as
// *SchedulerError and are not retried.
func (r *Reconciler) Reconcile(ctx context.Context, desired RecurrenceRule) (Outcome, error) {
	if err := desired.Validate(); err != nil {
		return Unchanged, err
	}

	jobs, err := r.scheduler.List(ctx)
	if err != nil {
		return Unchanged, &SchedulerError{Op: "list", Err: err}
	}

	var owned []Job
	keep := -1
	for _, job := range jobs {
		if !desired.owns(job) {
			continue
		}
		if keep < 0 && desired.matches(job) {
			keep = len(owned)
		}
		owned = append(owned, job)
	}

	if len(owned) > 0 {
		if keep < 0 {
			keep = 0
		}
		var duplicates []Job
		for i, job := range owned {
			if i != keep {
				duplicates = append(duplicates, job)
			}
		}
		return r.converge(ctx, desired, owned[keep], duplicates)
	}

	id, err := r.scheduler.Create(ctx, Job{
		Enable:   true,
		Timespec: desired.Timespec,
		Calls:    []Call{desired.Invocation.Call()},
	})
	if err != nil {
		return Unchanged, &SchedulerError{Op: "create", Err: err}
	}
	r.logger.Info("recurring job created", "job_id", id, "timespec", desired.Timespec)

	if r.ids != nil {
		if err := r.ids.Set(ctx, JobKey(desired.Invocation.Instance), strconv.Itoa(id)); err != nil {
			return Created, &SchedulerError{Op: "persist id", Err: err}
		}
	}
	return Created, nil
}

// converge brings job in line with desired and removes the duplicates, which
// are other jobs carrying this instance's marker
func (r *Reconciler) converge(ctx context.Context, desired RecurrenceRule, job Job, duplicates []Job) (Outcome, error) {
	outcome := Unchanged
	for _, dup := range duplicates {
		r.logger.Warn("removing duplicate recurring job", "job_id", dup.ID, "kept_job_id", job.ID)
		if err := r.scheduler.Delete(ctx, dup.ID); err != nil {
			return outcome, &SchedulerError{Op: "delete", Err: err}
		}
		outcome = Updated
	}

	if desired.matches(job) {
		r.logger.Info("recurring job up to date", "job_id", job.ID, "timespec", job.Timespec)
		return outcome, nil
	}

	r.logger.Info("recurring job has changed",
		"job_id", job.ID, "old_timespec", job.Timespec, "new_timespec", desired.Timespec)

	updated := job
	updated.Timespec = desired.Timespec
	updated.Calls = append([]Call{desired.Invocation.Call()}, job.Calls[1:]...)
	if err := r.scheduler.Update(ctx, updated); err != nil {
		return outcome, &SchedulerError{Op: "update", Err: err}
	}
	return Updated, nil
}
