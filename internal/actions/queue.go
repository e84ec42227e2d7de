package actions

import (
	"fmt"
	"time"
)

// Kind selects the power transition of a deferred action
type Kind int

const (
	On Kind = iota
	Off
)

func (k Kind) String() string {
	switch k {
	case On:
		return "on"
	case Off:
		return "off"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DeferredAction is a one-shot power transition fired at FireAt
type DeferredAction struct {
	FireAt time.Time `json:"fire_at"`
	Kind   Kind      `json:"kind"`
	Cycle  uint64    `json:"cycle"`
}

// actionQueue implements heap.Interface ordered by fire time. Actions with
// equal fire times keep arming order so ON precedes OFF.
type actionQueue []queued

type queued struct {
	action DeferredAction
	seq    uint64
}

func (q actionQueue) Len() int { return len(q) }

func (q actionQueue) Less(i, j int) bool {
	if q[i].action.FireAt.Equal(q[j].action.FireAt) {
		return q[i].seq < q[j].seq
	}
	return q[i].action.FireAt.Before(q[j].action.FireAt)
}

func (q actionQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *actionQueue) Push(x any) { *q = append(*q, x.(queued)) }

func (q *actionQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
