// Package broker looks up live consumer group statistics.
//
// Two providers are available:
//   - dashboard: the RocketMQ console REST endpoint consumer/group.query
//   - prometheus: a rocketmq-exporter text exposition, scraped per lookup
package broker
