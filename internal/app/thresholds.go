package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"mqwatch/internal/config"
	"mqwatch/internal/monitor"
	"mqwatch/internal/registry"
	logx "mqwatch/pkg/logx"
)

// ParseThreshold reads "group=minCount,maxDiffTotal".
func ParseThreshold(raw string) (monitor.ThresholdConfig, error) {
	group, limits, ok := strings.Cut(strings.TrimSpace(raw), "=")
	if !ok {
		return monitor.ThresholdConfig{}, fmt.Errorf("threshold %q: want group=minCount,maxDiffTotal", raw)
	}
	minRaw, maxRaw, ok := strings.Cut(limits, ",")
	if !ok {
		return monitor.ThresholdConfig{}, fmt.Errorf("threshold %q: want group=minCount,maxDiffTotal", raw)
	}
	minCount, err := strconv.Atoi(strings.TrimSpace(minRaw))
	if err != nil {
		return monitor.ThresholdConfig{}, fmt.Errorf("threshold %q: minCount: %w", raw, err)
	}
	maxBacklog, err := strconv.ParseInt(strings.TrimSpace(maxRaw), 10, 64)
	if err != nil {
		return monitor.ThresholdConfig{}, fmt.Errorf("threshold %q: maxDiffTotal: %w", raw, err)
	}
	t := monitor.ThresholdConfig{
		Group:            strings.TrimSpace(group),
		MinConsumerCount: minCount,
		MaxBacklogTotal:  maxBacklog,
	}
	if err := t.Validate(); err != nil {
		return monitor.ThresholdConfig{}, err
	}
	return t, nil
}

// EditThresholds writes threshold changes to the registry named by the config
// at cfgPath, then exits without starting the monitor. Every edit is
// attempted; failures are joined.
func EditThresholds(ctx context.Context, cfgPath string, set []monitor.ThresholdConfig, del []string) error {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return err
	}
	config.ApplyDefaults(cfg)

	logs, root := logx.New(mapLoggingConfig(cfg.Logging))
	defer logs.Close()
	log := root.With(logx.String("comp", "registry"))

	rc, err := mapRegistryConfig(cfg)
	if err != nil {
		return err
	}
	reg, err := registry.Open(rc, log)
	if err != nil {
		return err
	}
	defer reg.Close()

	var errs []error
	for _, t := range set {
		if err := reg.Put(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("set %s: %w", t.Group, err))
			continue
		}
		log.Info("threshold saved",
			logx.String("group", t.Group),
			logx.Int("min_consumers", t.MinConsumerCount),
			logx.Int64("max_backlog", t.MaxBacklogTotal),
		)
	}
	for _, group := range del {
		group = strings.TrimSpace(group)
		if err := reg.Delete(ctx, group); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", group, err))
			continue
		}
		log.Info("threshold deleted", logx.String("group", group))
	}
	return errors.Join(errs...)
}
