package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrConfigUnavailable means the threshold registry could not be read.
	ErrConfigUnavailable = errors.New("threshold registry unavailable")
	// ErrStatusLookupFailed means one group's status could not be fetched.
	ErrStatusLookupFailed = errors.New("group status lookup failed")
	// ErrChannelDeliveryFailed means one channel failed to deliver an alert.
	ErrChannelDeliveryFailed = errors.New("channel delivery failed")
)

// ThresholdConfig is the monitor setting for one consumer group.
type ThresholdConfig struct {
	Group            string `json:"group"`
	MinConsumerCount int    `json:"minCount"`
	MaxBacklogTotal  int64  `json:"maxDiffTotal"`
}

// Validate rejects negative thresholds.
func (t ThresholdConfig) Validate() error {
	if strings.TrimSpace(t.Group) == "" {
		return errors.New("group name required")
	}
	if t.MinConsumerCount < 0 {
		return fmt.Errorf("group %q: minCount must be >= 0", t.Group)
	}
	if t.MaxBacklogTotal < 0 {
		return fmt.Errorf("group %q: maxDiffTotal must be >= 0", t.Group)
	}
	return nil
}

// GroupStatus is a point-in-time snapshot of a consumer group.
type GroupStatus struct {
	Group         string `json:"group"`
	ConsumerCount int    `json:"count"`
	BacklogTotal  int64  `json:"diffTotal"`
}

// Reason tags which comparison failed.
type Reason int

const (
	ReasonUnderMinConsumers Reason = iota + 1
	ReasonOverMaxBacklog
	ReasonBoth
)

func (r Reason) String() string {
	switch r {
	case ReasonUnderMinConsumers:
		return "UNDER_MIN_CONSUMERS"
	case ReasonOverMaxBacklog:
		return "OVER_MAX_BACKLOG"
	case ReasonBoth:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Breach is a threshold violation for one group in one pass.
type Breach struct {
	Status    GroupStatus
	Threshold ThresholdConfig
	Reason    Reason
}

// Registry supplies the current threshold map.
type Registry interface {
	QueryAll(ctx context.Context) (map[string]ThresholdConfig, error)
}

// StatusProvider supplies live statistics for one group.
type StatusProvider interface {
	QueryGroup(ctx context.Context, group string) (GroupStatus, error)
}

// DispatchResult lists channel names by outcome.
type DispatchResult struct {
	Sent   []string `json:"sent,omitempty"`
	Failed []string `json:"failed,omitempty"`
}

// Dispatcher fans an alert out to every enabled channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) DispatchResult
}

// PassReport summarizes one scan pass.
type PassReport struct {
	ID             string        `json:"id"`
	Started        time.Time     `json:"started"`
	Took           time.Duration `json:"took"`
	Groups         int           `json:"groups"`
	Evaluated      int           `json:"evaluated"`
	LookupFailures int           `json:"lookup_failures"`
	Breaches       int           `json:"breaches"`
	Dispatched     int           `json:"dispatched"`
	ChannelErrors  int           `json:"channel_errors"`
	Abandoned      bool          `json:"abandoned,omitempty"`
	Err            string        `json:"err,omitempty"`
}

// BreachEvent is published on the event bus for every breach.
type BreachEvent struct {
	PassID string         `json:"pass_id"`
	Status GroupStatus    `json:"status"`
	Reason Reason         `json:"reason"`
	Result DispatchResult `json:"result"`
}
