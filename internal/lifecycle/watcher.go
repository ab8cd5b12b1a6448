package lifecycle

import (
	"bfbot/internal/models"
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func (l *Lifecycle) startWatcher(acceptanceID string, size decimal.Decimal) {
	l.stopWatcher()

	l.gen++
	ctx, cancel := context.WithCancel(l.ctx)
	done := make(chan struct{})
	l.watchCancel = cancel
	l.watchDone = done

	go l.watch(ctx, l.gen, watched{id: acceptanceID, size: size}, done)
}

func (l *Lifecycle) stopWatcher() {
	if l.watchCancel == nil {
		return
	}
	l.watchCancel()
	<-l.watchDone
	l.watchCancel = nil
	l.watchDone = nil
}

// watch polls executions of the latest order until it is completely filled, the budget runs out or ctx ends.
// It never touches lifecycle state itself: every outcome is reported to the actor.
func (l *Lifecycle) watch(ctx context.Context, gen int, order watched, done chan struct{}) {
	defer close(done)

	deadline := l.deadline()
	failures := 0
	resubmits := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(l.cfg.FillWait):
		}

		execs, err := l.client.Executions(ctx, l.cfg.Pair, order.id, l.cfg.ExecutionCount)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			l.orderEntry(order.id).WithError(err).WithField("failures", failures).Warn("Ошибка запроса исполнений, повторяем запрос.")
			if l.cfg.MaxQueryFailures > 0 && failures >= l.cfg.MaxQueryFailures {
				l.emit(ctx, event{
					kind: eventExhausted,
					gen:  gen,
					err:  fmt.Errorf("%w: %d ошибок запроса исполнений подряд: %w", ErrRetryExhausted, failures, err),
				})
				return
			}
			continue
		}
		failures = 0

		if fill, ok := models.FillFromExecutions(order.id, execs); ok {
			if fill.Lot.GreaterThanOrEqual(order.size) {
				l.emit(ctx, event{kind: eventFilled, gen: gen, fill: fill})
				return
			}
			l.orderEntry(order.id).WithFields(map[string]interface{}{
				"filled": fill.Lot.String(),
				"size":   order.size.String(),
			}).Debug("Ордер исполнен частично, ждём остаток.")
		}

		if deadline.IsZero() || time.Now().Before(deadline) {
			continue
		}

		if l.cfg.MaxResubmits > 0 && resubmits >= l.cfg.MaxResubmits {
			l.emit(ctx, event{
				kind: eventExhausted,
				gen:  gen,
				err:  fmt.Errorf("%w: ордер не исполнен после %d перестановок", ErrRetryExhausted, resubmits),
			})
			return
		}
		resubmits++

		reply := make(chan watched, 1)
		if !l.emit(ctx, event{kind: eventExpired, gen: gen, reply: reply}) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case next := <-reply:
			if next.id == "" {
				return
			}
			order = next
			deadline = l.deadline()
		}
	}
}

func (l *Lifecycle) emit(ctx context.Context, ev event) bool {
	select {
	case l.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Lifecycle) deadline() time.Time {
	if l.cfg.OrderTTL <= 0 {
		return time.Time{}
	}
	return time.Now().Add(l.cfg.OrderTTL)
}
