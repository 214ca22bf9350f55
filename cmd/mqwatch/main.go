package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"mqwatch/internal/app"
	"mqwatch/internal/monitor"
)

// listFlag collects a repeatable string flag.
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var (
		cfgPath  string
		envPath  string
		once     bool
		setFlags listFlag
		delFlags listFlag
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (json, yaml or toml)")
	flag.StringVar(&envPath, "env", ".env", "optional dotenv file with secrets")
	flag.BoolVar(&once, "once", false, "run a single scan pass and exit")
	flag.Var(&setFlags, "set-threshold", "write group=minCount,maxDiffTotal to the registry and exit (repeatable)")
	flag.Var(&delFlags, "delete-threshold", "remove a group from the registry and exit (repeatable)")
	flag.Parse()

	// existing environment wins over the file
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "fatal env:", err)
		os.Exit(1)
	}

	if len(setFlags) > 0 || len(delFlags) > 0 {
		os.Exit(editThresholds(cfgPath, setFlags, delFlags))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signalled := make(chan app.StopReason, 1)
	go func() {
		signalled <- stopReason(<-sigCh)
		cancel()
	}()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if once {
		rep := a.RunOnce(ctx)
		_ = a.Stop(context.Background(), app.StopOnceDone)
		if rep.Err != "" {
			fmt.Fprintln(os.Stderr, "scan failed:", rep.Err)
			os.Exit(2)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	var reason app.StopReason
	select {
	case reason = <-signalled:
	case <-a.Done():
		// a signal also cancels the supervisor; prefer its reason
		select {
		case reason = <-signalled:
		default:
			reason = app.StopFatalError
		}
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func stopReason(sig os.Signal) app.StopReason {
	if sig == os.Interrupt {
		return app.StopSIGINT
	}
	return app.StopSIGTERM
}

func editThresholds(cfgPath string, set, del []string) int {
	thresholds := make([]monitor.ThresholdConfig, 0, len(set))
	for _, raw := range set {
		t, err := app.ParseThreshold(raw)
		if err != nil {
			fmt.Fprintln(os.Stderr, "invalid -set-threshold:", err)
			return 2
		}
		thresholds = append(thresholds, t)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.EditThresholds(ctx, cfgPath, thresholds, del); err != nil {
		fmt.Fprintln(os.Stderr, "threshold edit failed:", err)
		return 1
	}
	return 0
}
