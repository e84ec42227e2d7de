// Package power switches the relay and reports the outcome.
package power

import (
	"context"
	"fmt"

	"github.com/awaistahir/spotswitch/internal/notify"
)

// Relay is the device switch
type Relay interface {
	SetSwitch(ctx context.Context, on bool) error
}

// Notifier receives outcome messages
type Notifier interface {
	Notify(ctx context.Context, message string, sendExternally bool, persistKey string)
}

// ControlError reports a relay call that the device rejected or that never
// reached it
type ControlError struct {
	On  bool
	Err error
}

func (e *ControlError) Error() string {
	state := "off"
	if e.On {
		state = "on"
	}
	return fmt.Sprintf("switching power %s: %v", state, e.Err)
}

func (e *ControlError) Unwrap() error {
	return e.Err
}

// Controller performs power transitions
type Controller struct {
	relay     Relay
	notifier  Notifier
	notifyOn  bool
	notifyOff bool
}

// NewController creates a controller. notifyOn and notifyOff select which
// transitions are also sent as external messages.
func NewController(relay Relay, notifier Notifier, notifyOn, notifyOff bool) *Controller {
	return &Controller{
		relay:     relay,
		notifier:  notifier,
		notifyOn:  notifyOn,
		notifyOff: notifyOff,
	}
}

// SetPower calls the relay exactly once. The result is whatever the relay
// reports; the actual switch state is never read back.
func (c *Controller) SetPower(ctx context.Context, on bool) error {
	external := c.notifyOff
	if on {
		external = c.notifyOn
	}

	if err := c.relay.SetSwitch(ctx, on); err != nil {
		cerr := &ControlError{On: on, Err: err}
		c.notifier.Notify(ctx, notify.PowerMessage(on, err), external, "")
		return cerr
	}

	c.notifier.Notify(ctx, notify.PowerMessage(on, nil), external, "")
	return nil
}
