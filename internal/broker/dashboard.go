package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"mqwatch/internal/monitor"
)

// dashboardProvider queries the console's consumer/group.query endpoint.
type dashboardProvider struct {
	endpoint string
	http     httpClient
}

type dashboardReply struct {
	Status int             `json:"status"`
	Data   *dashboardGroup `json:"data"`
	ErrMsg string          `json:"errMsg"`
}

type dashboardGroup struct {
	Group     string `json:"group"`
	Count     int    `json:"count"`
	DiffTotal int64  `json:"diffTotal"`
}

func (p *dashboardProvider) QueryGroup(ctx context.Context, group string) (monitor.GroupStatus, error) {
	u := p.endpoint + "/consumer/group.query?consumerGroup=" + url.QueryEscape(group)
	body, err := p.http.get(ctx, u, "application/json")
	if err != nil {
		return monitor.GroupStatus{}, err
	}
	defer body.Close()

	var reply dashboardReply
	if err := json.NewDecoder(body).Decode(&reply); err != nil {
		return monitor.GroupStatus{}, fmt.Errorf("decode group.query: %w", err)
	}
	if reply.Status != 0 {
		return monitor.GroupStatus{}, fmt.Errorf("%w: %s: status %d: %s", ErrGroupNotFound, group, reply.Status, reply.ErrMsg)
	}
	if reply.Data == nil {
		return monitor.GroupStatus{}, fmt.Errorf("%w: %s", ErrGroupNotFound, group)
	}
	st := monitor.GroupStatus{
		Group:         reply.Data.Group,
		ConsumerCount: reply.Data.Count,
		BacklogTotal:  reply.Data.DiffTotal,
	}
	if st.Group == "" {
		st.Group = group
	}
	return st, nil
}
