package broker

import (
	"context"
	"fmt"
	"io"
	"math"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"mqwatch/internal/monitor"
)

// promProvider reads group statistics from a rocketmq-exporter scrape.
//
// The consumer metric may be exported once per topic; the largest value wins.
// The backlog metric is summed across all series for the group.
type promProvider struct {
	url            string
	http           httpClient
	groupLabel     string
	consumerMetric string
	backlogMetric  string
}

func (p *promProvider) QueryGroup(ctx context.Context, group string) (monitor.GroupStatus, error) {
	body, err := p.http.get(ctx, p.url, string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	if err != nil {
		return monitor.GroupStatus{}, err
	}
	defer body.Close()

	mfs, err := parseMetrics(body)
	if err != nil {
		return monitor.GroupStatus{}, err
	}

	count, okCount := maxForGroup(mfs[p.consumerMetric], p.groupLabel, group)
	backlog, okBacklog := sumForGroup(mfs[p.backlogMetric], p.groupLabel, group)
	if !okCount && !okBacklog {
		return monitor.GroupStatus{}, fmt.Errorf("%w: %s", ErrGroupNotFound, group)
	}
	return monitor.GroupStatus{
		Group:         group,
		ConsumerCount: int(count),
		BacklogTotal:  int64(math.Round(backlog)),
	}, nil
}

// parseMetrics decodes a text exposition. A partial parse is accepted.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}

func hasLabel(m *dto.Metric, name, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func sumForGroup(mf *dto.MetricFamily, label, group string) (float64, bool) {
	if mf == nil {
		return 0, false
	}
	var total float64
	found := false
	for _, m := range mf.GetMetric() {
		if hasLabel(m, label, group) {
			total += sampleValue(m)
			found = true
		}
	}
	return total, found
}

func maxForGroup(mf *dto.MetricFamily, label, group string) (float64, bool) {
	if mf == nil {
		return 0, false
	}
	best := 0.0
	found := false
	for _, m := range mf.GetMetric() {
		if !hasLabel(m, label, group) {
			continue
		}
		if v := sampleValue(m); !found || v > best {
			best = v
		}
		found = true
	}
	return best, found
}
