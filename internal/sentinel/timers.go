package sentinel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

func intervalDuration(interval int, unit string) time.Duration {
	var base time.Duration
	switch unit {
	case "seconds":
		base = time.Second
	case "minutes":
		base = time.Minute
	case "hours":
		base = time.Hour
	case "days":
		base = 24 * time.Hour
	default:
		return 0
	}
	return time.Duration(interval) * base
}

// applyTimersLocked tears down every running timer goroutine and starts
// one per registered time sentinel. Mutations rebuild the whole set so
// the goroutines always mirror the persisted state.
func (e *Engine) applyTimersLocked() {
	for _, stop := range e.timerCancels {
		stop()
	}
	e.timerCancels = make(map[string]context.CancelFunc)

	for id, p := range e.items[KindTime] {
		ctx, cancel := context.WithCancel(e.runCtx)
		e.timerCancels[id] = cancel
		e.wg.Add(1)
		go e.runTimer(ctx, id, p)
	}
}

func (e *Engine) runTimer(ctx context.Context, id string, p Payload) {
	defer e.wg.Done()

	if p.CronExpr != "" {
		e.runCron(ctx, id, p)
		return
	}

	d := intervalDuration(p.Interval, p.Unit)
	if d <= 0 {
		slog.Warn("sentinel.timer.invalid", "id", id, "interval", p.Interval, "unit", p.Unit)
		return
	}

	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.trigger(timeTriggerMessage(id, p))
		}
	}
}

func (e *Engine) runCron(ctx context.Context, id string, p Payload) {
	for {
		next, err := gronx.NextTickAfter(p.CronExpr, time.Now(), false)
		if err != nil {
			slog.Error("sentinel.cron.schedule_failed", "id", id, "expr", p.CronExpr, "error", err)
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			e.trigger(timeTriggerMessage(id, p))
		}
	}
}

func timeTriggerMessage(id string, p Payload) string {
	return fmt.Sprintf("[Time Sentinel Triggered] ID: %s | Task: %s", id, p.Description)
}
