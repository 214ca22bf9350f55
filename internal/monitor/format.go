package monitor

import (
	"fmt"
	"strings"
	"time"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	defaultProduct  = "RocketMQ"
)

// Formatter renders breaches as operator-facing alert text.
//
// Clock and Location are injectable so output is reproducible in tests.
type Formatter struct {
	Product  string
	Clock    func() time.Time
	Location *time.Location
}

func NewFormatter(product string, loc *time.Location) *Formatter {
	return &Formatter{Product: product, Clock: time.Now, Location: loc}
}

// Subject is the fixed alert title (also the email subject).
func (f *Formatter) Subject() string {
	return "[ALERT] " + f.product()
}

func (f *Formatter) Format(b Breach) string {
	var sb strings.Builder
	sb.WriteString(f.Subject())
	fmt.Fprintf(&sb, "\nConsumer group: %s", b.Status.Group)
	fmt.Fprintf(&sb, "\nConsumers: %d", b.Status.ConsumerCount)
	fmt.Fprintf(&sb, "\nBacklog: %d", b.Status.BacklogTotal)
	fmt.Fprintf(&sb, "\nReason: %s", describeReason(b))
	fmt.Fprintf(&sb, "\nTime: %s", f.now().Format(timestampLayout))
	return sb.String()
}

func (f *Formatter) product() string {
	if p := strings.TrimSpace(f.Product); p != "" {
		return p
	}
	return defaultProduct
}

func (f *Formatter) now() time.Time {
	clock := f.Clock
	if clock == nil {
		clock = time.Now
	}
	t := clock()
	if f.Location != nil {
		t = t.In(f.Location)
	}
	return t
}

func describeReason(b Breach) string {
	under := fmt.Sprintf("consumers below minimum %d", b.Threshold.MinConsumerCount)
	over := fmt.Sprintf("backlog above maximum %d", b.Threshold.MaxBacklogTotal)
	switch b.Reason {
	case ReasonUnderMinConsumers:
		return under
	case ReasonOverMaxBacklog:
		return over
	case ReasonBoth:
		return under + "; " + over
	default:
		// Breach values only come from Evaluate.
		panic(fmt.Sprintf("monitor: breach for %q has no reason", b.Status.Group))
	}
}
