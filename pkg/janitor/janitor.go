package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"collabchat/pkg/logger"
)

// Janitor runs periodic housekeeping over the live layer: expiring
// queued offline events and clearing typing signals whose stop frame
// never arrived. Sweeps are in-memory and idempotent, so an overlapping
// or missed tick is harmless.

// Sweeper is the live hub surface the janitor drives.
type Sweeper interface {
	SweepTyping()
	SweepOffline()
}

// Start launches the sweep scheduler on the given cron expression and
// returns a cancel func. An empty expression defaults to every minute.
func Start(ctx context.Context, hub Sweeper, cronExpr string) (context.CancelFunc, error) {
	if cronExpr == "" {
		cronExpr = "* * * * *"
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid janitor cron expression: %s", cronExpr)
	}
	ctx2, cancel := context.WithCancel(ctx)
	go run(ctx2, hub, cronExpr)
	logger.Info("janitor_started", "cron", cronExpr)
	return cancel, nil
}

func run(ctx context.Context, hub Sweeper, cronExpr string) {
	for {
		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("janitor_nexttick_failed", "cron", cronExpr, "err", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case <-time.After(time.Until(next)):
			hub.SweepTyping()
			hub.SweepOffline()
			logger.Debug("janitor_sweep_done")
		case <-ctx.Done():
			logger.Info("janitor_stopping")
			return
		}
	}
}
