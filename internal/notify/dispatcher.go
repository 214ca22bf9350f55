package notify

import (
	"context"
	"fmt"
	"time"

	"mqwatch/internal/eventbus"
	"mqwatch/internal/monitor"
	logx "mqwatch/pkg/logx"
)

// Dispatcher sends alert text to every channel, in order.
//
// It is safe for concurrent use; channels must be too.
type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	log      logx.Logger
	bus      eventbus.Bus
}

func NewDispatcher(log logx.Logger, bus eventbus.Bus, timeout time.Duration, channels ...Channel) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Dispatcher{
		channels: append([]Channel(nil), channels...),
		timeout:  timeout,
		log:      log,
		bus:      bus,
	}
}

// Channels returns channel names in dispatch order.
func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		out = append(out, ch.Name())
	}
	return out
}

// Dispatch attempts every channel once. It never returns early.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) monitor.DispatchResult {
	var res monitor.DispatchResult
	if len(d.channels) == 0 {
		d.log.Warn("alert dropped: no channels enabled")
		return res
	}
	for _, ch := range d.channels {
		name := ch.Name()
		start := time.Now()
		err := d.send(ctx, ch, text)
		took := time.Since(start)
		ev := DeliveryEvent{Channel: name, Kind: ch.Kind().String(), At: start, Took: took}
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", monitor.ErrChannelDeliveryFailed, name, err)
			ev.Error = err.Error()
			res.Failed = append(res.Failed, name)
			d.log.Warn("alert delivery failed", logx.String("channel", name), logx.Duration("took", took), logx.Err(err))
			d.bus.Publish(eventbus.Event{Type: eventbus.TypeDeliveryFailed, Time: start, Data: ev})
			continue
		}
		res.Sent = append(res.Sent, name)
		d.log.Info("alert delivered", logx.String("channel", name), logx.Duration("took", took))
		d.bus.Publish(eventbus.Event{Type: eventbus.TypeDelivered, Time: start, Data: ev})
	}
	return res
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel panicked: %v", r)
		}
	}()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return ch.Send(ctx, text)
}
