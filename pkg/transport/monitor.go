package transport

import (
	"context"
	"errors"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/orb.go/pkg/can"
)

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// runMonitor polls the bus state as state change notifications are not
// reliable on every controller. A bus-off controller is restarted and
// recovered, too many consecutive recoveries are fatal.
func (c *Context) runMonitor(ctx context.Context, reporter can.StateReporter) error {
	recoveries := 0
	delay := c.cfg.MonitorInterval
	timer := time.NewTimer(delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-c.wakeCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		state, counters, err := reporter.State()
		switch {
		case err != nil:
			glog.Warningf("transport: monitor: %v", err)
		case state == can.BusOff:
			glog.Warningf("transport: recovery from bus-off, tx errors %d rx errors %d",
				counters.TxErrors, counters.RxErrors)
			recoveries++
			if err := c.recoverBusOff(ctx, reporter, recoveries); err != nil {
				return err
			}
			delay = c.cfg.MonitorErrorInterval
		case state <= can.BusErrorWarning || state == can.BusStopped:
			recoveries = 0
			delay = c.cfg.MonitorInterval
		default:
			delay = c.cfg.MonitorErrorInterval
		}
		timer.Reset(delay)
	}
}

func (c *Context) recoverBusOff(ctx context.Context, reporter can.StateReporter, recoveries int) error {
	if err := c.dev.Stop(); err != nil && !errors.Is(err, can.ErrAlready) {
		glog.Warningf("transport: bus-off stop: %v", err)
	}
	if err := sleepCtx(ctx, c.cfg.RecoveryDelay); err != nil {
		return err
	}
	if err := c.dev.Start(); err != nil && !errors.Is(err, can.ErrAlready) {
		c.fatal(err)
		return err
	}
	if err := sleepCtx(ctx, c.cfg.RecoveryDelay); err != nil {
		return err
	}
	if recoveries > c.cfg.MaxBusOffRecoveries {
		c.fatal(ErrBusOff)
		return ErrBusOff
	}
	c.stats.busOffRecoveries.Add(1)
	rctx, cancel := context.WithTimeout(ctx, c.cfg.RecoverTimeout)
	err := reporter.Recover(rctx)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		glog.Errorf("transport: bus-off recovery failed: %v", err)
	}
	c.ResetAsync()
	return nil
}
