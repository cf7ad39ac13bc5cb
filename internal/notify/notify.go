// Package notify fans a dose transition out to the configured
// notification channels.
//
// Delivery is best-effort and decoupled from the authoritative status
// transition: a channel failure is logged and reported in the Result,
// never escalated to the scheduler pass.
package notify

import (
	"context"
	"fmt"

	"dosewatch/internal/dose"
	"dosewatch/internal/storage"
	logx "dosewatch/pkg/logx"
)

// Channel is one independently-fallible delivery target.
type Channel interface {
	Name() string
	// Configured reports whether the channel can address this owner.
	// An unconfigured channel is silently skipped, never an error.
	Configured(o storage.Owner) bool
	Send(ctx context.Context, o storage.Owner, kind dose.Kind, msg string) error
}

// ChannelResult is the outcome of one attempted channel.
type ChannelResult struct {
	Channel string
	Err     error
}

// Result reports per-channel outcomes of one dispatch. The scheduler
// uses it only for logging.
type Result struct {
	Attempts []ChannelResult
}

func (r Result) Failed() []string {
	var out []string
	for _, a := range r.Attempts {
		if a.Err != nil {
			out = append(out, a.Channel)
		}
	}
	return out
}

type Dispatcher struct {
	log      logx.Logger
	channels []Channel
}

func NewDispatcher(log logx.Logger, channels ...Channel) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{log: log, channels: channels}
}

// Dispatch composes the message for kind and invokes each configured
// channel in turn.
func (d *Dispatcher) Dispatch(ctx context.Context, o storage.Owner, kind dose.Kind, ds dose.Dose) Result {
	msg := Message(kind, ds)

	var res Result
	for _, ch := range d.channels {
		if !ch.Configured(o) {
			continue
		}
		err := ch.Send(ctx, o, kind, msg)
		res.Attempts = append(res.Attempts, ChannelResult{Channel: ch.Name(), Err: err})
		if err != nil {
			d.log.Warn("notification send failed",
				logx.String("channel", ch.Name()),
				logx.String("owner", o.ID),
				logx.String("kind", string(kind)),
				logx.Err(err))
			continue
		}
		d.log.Debug("notification sent",
			logx.String("channel", ch.Name()),
			logx.String("owner", o.ID),
			logx.String("kind", string(kind)))
	}
	return res
}

// Message composes the channel-agnostic text for a transition.
func Message(kind dose.Kind, d dose.Dose) string {
	switch kind {
	case dose.KindLate:
		return fmt.Sprintf("Running late: %s %s was due at %s.", d.Name, d.Dosage, d.Time)
	case dose.KindMissed:
		return fmt.Sprintf("Missed dose: %s %s scheduled for %s was not taken.", d.Name, d.Dosage, d.Time)
	default:
		return fmt.Sprintf("Reminder: Take %s %s now.", d.Name, d.Dosage)
	}
}
