package schedule

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// InvokeMethod is the scheduler call used to reach the recompute entry point
const InvokeMethod = "HTTP.GET"

// instanceParam carries the identity marker inside the callback URL
const instanceParam = "instance"

// Job is a recurring job as held by the external scheduler
type Job struct {
	ID       int    `json:"id,omitempty"`
	Enable   bool   `json:"enable"`
	Timespec string `json:"timespec"`
	Calls    []Call `json:"calls"`
}

// Call is one RPC invocation made when a job fires
type Call struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// Scheduler is the external periodic job engine
type Scheduler interface {
	List(ctx context.Context) ([]Job, error)
	Create(ctx context.Context, job Job) (int, error)
	Update(ctx context.Context, job Job) error
	Delete(ctx context.Context, id int) error
}

// IDStore persists the identifier of the job created for this instance
type IDStore interface {
	Set(ctx context.Context, key, value string) error
}

// Invocation is the typed payload of the recurring job: a GET to the
// recompute endpoint tagged with the identity of the process that owns it
type Invocation struct {
	URL      string
	Instance string
}

// Call renders the invocation as a scheduler call
func (inv Invocation) Call() Call {
	u, err := url.Parse(inv.URL)
	if err != nil {
		// keep the raw URL; ParseInvocation will never claim it
		return Call{Method: InvokeMethod, Params: map[string]any{"url": inv.URL}}
	}
	q := u.Query()
	q.Set(instanceParam, inv.Instance)
	u.RawQuery = q.Encode()
	return Call{Method: InvokeMethod, Params: map[string]any{"url": u.String()}}
}

// ParseInvocation extracts a typed invocation from a scheduler call. It
// reports false for calls that were not created by any spotswitch instance.
func ParseInvocation(c Call) (Invocation, bool) {
	if !strings.EqualFold(c.Method, InvokeMethod) {
		return Invocation{}, false
	}
	raw, ok := c.Params["url"].(string)
	if !ok {
		return Invocation{}, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Invocation{}, false
	}
	q := u.Query()
	instance := q.Get(instanceParam)
	if instance == "" {
		return Invocation{}, false
	}
	q.Del(instanceParam)
	u.RawQuery = q.Encode()
	return Invocation{URL: u.String(), Instance: instance}, true
}

// RecurrenceRule is the desired recurring trigger
type RecurrenceRule struct {
	Timespec   string
	Invocation Invocation
}

// Validate checks that the rule can be installed
func (r RecurrenceRule) Validate() error {
	if strings.TrimSpace(r.Timespec) == "" {
		return fmt.Errorf("empty timespec: %w", ErrInvalidRule)
	}
	if r.Invocation.Instance == "" {
		return fmt.Errorf("empty instance marker: %w", ErrInvalidRule)
	}
	if _, err := url.ParseRequestURI(r.Invocation.URL); err != nil {
		return fmt.Errorf("callback url %q: %w", r.Invocation.URL, ErrInvalidRule)
	}
	return nil
}

// owns reports whether job was created for the rule's instance
func (r RecurrenceRule) owns(job Job) bool {
	if len(job.Calls) == 0 {
		return false
	}
	inv, ok := ParseInvocation(job.Calls[0])
	return ok && inv.Instance == r.Invocation.Instance
}

// matches reports whether job already reflects the rule
func (r RecurrenceRule) matches(job Job) bool {
	if len(job.Calls) == 0 || job.Timespec != r.Timespec {
		return false
	}
	inv, ok := ParseInvocation(job.Calls[0])
	if !ok {
		return false
	}
	// compare in canonical form so query encoding differences do not count
	want, _ := ParseInvocation(r.Invocation.Call())
	return inv == want
}

// JobKey is the key-value store key holding the job id of instance
func JobKey(instance string) string {
	return "spotswitch-schedule-" + instance
}
