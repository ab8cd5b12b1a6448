package lifecycle

import (
	"bfbot/internal/exchange"
	"bfbot/internal/logger"
	"bfbot/internal/metrics"
	"bfbot/internal/models"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Pair     string
	Side     models.OrderSide
	Lot      decimal.Decimal
	Slippage decimal.Decimal

	// FillWait is the pause before every executions query.
	FillWait time.Duration
	// OrderTTL is how long an unfilled order is polled before it is replaced.
	// Zero keeps polling the same order and leaves expiry to the venue.
	OrderTTL         time.Duration
	MaxResubmits     int
	MaxQueryFailures int
	ExecutionCount   int
	TimeInForce      models.TimeInForce
}

type Snapshot struct {
	ID        string
	Side      models.OrderSide
	State     State
	Phase     Phase
	OpenFill  *models.Fill
	CloseFill *models.Fill
	OrderIDs  []string
	Err       error
}

// Lifecycle drives one position leg: an entry order, its fill, an exit order and its fill.
// All state changes happen on a single goroutine; callers and the fill watcher talk to it over channels.
type Lifecycle struct {
	id     string
	cfg    Config
	client exchange.Client
	log    *logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	intents chan intent
	events  chan event
	done    chan struct{}

	mu   sync.RWMutex
	view Snapshot

	state      State
	phase      Phase
	openFill   *models.Fill
	closeFill  *models.Fill
	ids        []string
	closeStart int
	limit      *decimal.Decimal
	size       decimal.Decimal
	lastErr    error
	// partial holds executions of the current phase from orders that are no longer watched.
	partial *models.Fill

	gen         int
	watchCancel context.CancelFunc
	watchDone   chan struct{}
}

type intentKind int

const (
	intentOpen intentKind = iota
	intentClose
	intentCancel
)

type intent struct {
	kind  intentKind
	ctx   context.Context
	price *decimal.Decimal
	reply chan error
}

type eventKind int

const (
	eventFilled eventKind = iota
	eventExpired
	eventExhausted
)

type event struct {
	kind  eventKind
	gen   int
	fill  models.Fill
	err   error
	reply chan watched
}

// watched is the order the fill watcher follows; a zero id tells it to stop.
type watched struct {
	id   string
	size decimal.Decimal
}

func New(ctx context.Context, cfg Config, client exchange.Client, log *logger.Logger) *Lifecycle {
	if cfg.ExecutionCount <= 0 {
		cfg.ExecutionCount = 10
	}
	if cfg.TimeInForce == "" {
		cfg.TimeInForce = models.TimeInForceGTC
	}

	actorCtx, cancel := context.WithCancel(ctx)
	l := &Lifecycle{
		id:      strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		cfg:     cfg,
		client:  client,
		log:     log,
		ctx:     actorCtx,
		cancel:  cancel,
		intents: make(chan intent),
		events:  make(chan event),
		done:    make(chan struct{}),
	}
	l.publish()
	go l.run()
	return l
}

func (l *Lifecycle) ID() string {
	return l.id
}

func (l *Lifecycle) Side() models.OrderSide {
	return l.cfg.Side
}

// Open submits the entry order at the quote-derived limit price.
func (l *Lifecycle) Open(ctx context.Context) error {
	return l.send(ctx, intent{kind: intentOpen})
}

func (l *Lifecycle) OpenAt(ctx context.Context, price decimal.Decimal) error {
	return l.send(ctx, intent{kind: intentOpen, price: &price})
}

// Close submits the exit order at the quote-derived limit price.
func (l *Lifecycle) Close(ctx context.Context) error {
	return l.send(ctx, intent{kind: intentClose})
}

func (l *Lifecycle) CloseAt(ctx context.Context, price decimal.Decimal) error {
	return l.send(ctx, intent{kind: intentClose, price: &price})
}

// Cancel withdraws every order submitted for a pending entry. It succeeds only if every cancellation does.
func (l *Lifecycle) Cancel(ctx context.Context) error {
	return l.send(ctx, intent{kind: intentCancel})
}

// Stop terminates the actor and its watcher. Orders already on the venue are left as they are.
func (l *Lifecycle) Stop() {
	l.cancel()
	<-l.done
}

// Done is closed when the lifecycle reaches CLOSED or is stopped.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.view.State
}

func (l *Lifecycle) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := l.view
	snap.OrderIDs = append([]string(nil), l.view.OrderIDs...)
	return snap
}

func (l *Lifecycle) OrderIDs() []string {
	return l.Snapshot().OrderIDs
}

// Profit is only defined once both fills are known.
func (l *Lifecycle) Profit() (decimal.Decimal, bool) {
	snap := l.Snapshot()
	if snap.State != StateClosed || snap.OpenFill == nil || snap.CloseFill == nil {
		return decimal.Zero, false
	}
	return models.RealizedProfit(l.cfg.Side, *snap.OpenFill, *snap.CloseFill), true
}

func (l *Lifecycle) send(ctx context.Context, in intent) error {
	in.ctx = ctx
	in.reply = make(chan error, 1)

	select {
	case l.intents <- in:
	case <-l.done:
		if l.State() == StateClosed {
			return fmt.Errorf("%w: жизненный цикл завершён", ErrPrecondition)
		}
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-in.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Lifecycle) run() {
	defer close(l.done)
	defer l.stopWatcher()

	for {
		select {
		case <-l.ctx.Done():
			return
		case in := <-l.intents:
			in.reply <- l.handleIntent(in)
		case ev := <-l.events:
			l.handleEvent(ev)
		}
		if l.state == StateClosed {
			return
		}
	}
}

func (l *Lifecycle) handleIntent(in intent) error {
	switch in.kind {
	case intentOpen:
		return l.open(in.ctx, in.price)
	case intentClose:
		return l.close(in.ctx, in.price)
	case intentCancel:
		return l.cancelPending(in.ctx)
	}
	return fmt.Errorf("%w: неизвестная операция %d", ErrPrecondition, in.kind)
}

func (l *Lifecycle) open(ctx context.Context, price *decimal.Decimal) error {
	if l.state != StateInit {
		return l.precondition("open")
	}
	size := l.cfg.Lot
	id, err := l.submit(ctx, l.cfg.Side, price, size)
	if err != nil {
		return err
	}
	if err := l.transition(StatePending); err != nil {
		return err
	}
	l.phase = PhaseOpening
	l.limit = price
	l.size = size
	l.partial = nil
	l.lastErr = nil
	l.ids = append(l.ids, id)
	l.startWatcher(id, size)
	l.publish()
	return nil
}

func (l *Lifecycle) close(ctx context.Context, price *decimal.Decimal) error {
	if l.state != StateHold {
		return l.precondition("close")
	}
	size := l.remaining(PhaseClosing)
	id, err := l.submit(ctx, l.cfg.Side.Opposite(), price, size)
	if err != nil {
		return err
	}
	if err := l.transition(StatePending); err != nil {
		return err
	}
	l.phase = PhaseClosing
	l.limit = price
	l.size = size
	l.lastErr = nil
	l.closeStart = len(l.ids)
	l.ids = append(l.ids, id)
	l.startWatcher(id, size)
	l.publish()
	return nil
}

func (l *Lifecycle) cancelPending(ctx context.Context) error {
	if l.state != StatePending || l.phase != PhaseOpening {
		return l.precondition("cancel")
	}

	l.stopWatcher()

	var failed error
	for _, id := range l.ids {
		if err := l.client.CancelOrder(ctx, l.cfg.Pair, id); err != nil {
			metrics.OrderCancels.WithLabelValues("failed").Inc()
			failed = errors.Join(failed, fmt.Errorf("%w: %s: %w", exchange.ErrCancelRejected, id, err))
			continue
		}
		metrics.OrderCancels.WithLabelValues("ok").Inc()
	}
	latest := l.ids[len(l.ids)-1]
	if failed != nil {
		l.logEntry().WithError(failed).Warn("Не все ордера отменены, продолжаем ожидание исполнения.")
		l.startWatcher(latest, l.size)
		return failed
	}

	// Earlier orders were collected when they were replaced, only the latest can hold unseen executions.
	if err := l.collect(ctx, latest); err != nil {
		l.logEntry().WithError(err).Warn("Не удалось перепроверить исполнения после отмены.")
	}
	if l.partial != nil {
		l.orderEntry(latest).Info("Ордер исполнен до отмены.")
		l.commitFill()
		return nil
	}

	if err := l.transition(StateInit); err != nil {
		return err
	}
	l.phase = PhaseNone
	l.limit = nil
	l.ids = nil
	l.publish()
	l.logEntry().Info("Ордер на вход отменён.")
	return nil
}

func (l *Lifecycle) handleEvent(ev event) {
	if ev.gen != l.gen || l.state != StatePending {
		l.logEntry().WithField("gen", ev.gen).Debug("Устаревшее событие наблюдателя пропущено.")
		if ev.reply != nil {
			ev.reply <- watched{}
		}
		return
	}

	switch ev.kind {
	case eventFilled:
		l.absorb(ev.fill)
		l.commitFill()
	case eventExpired:
		ev.reply <- l.resubmit()
	case eventExhausted:
		l.abandon(ev.err)
	}
}

// commitFill completes the current phase with everything collected in partial.
func (l *Lifecycle) commitFill() {
	fill := *l.partial
	switch l.phase {
	case PhaseOpening:
		if err := l.transition(StateHold); err != nil {
			l.logEntry().WithError(err).Error("Не удалось зафиксировать исполнение.")
			return
		}
		l.openFill = &fill
	case PhaseClosing:
		if err := l.transition(StateClosed); err != nil {
			l.logEntry().WithError(err).Error("Не удалось зафиксировать исполнение.")
			return
		}
		l.closeFill = &fill
	}
	l.phase = PhaseNone
	l.limit = nil
	l.partial = nil
	l.publish()

	metrics.OrdersFilled.WithLabelValues(string(fill.Side)).Inc()
	l.orderEntry(fill.AcceptanceID).WithFields(map[string]interface{}{
		"price": fill.Price.String(),
		"lot":   fill.Lot.String(),
		"state": l.state.String(),
	}).Info("Ордер исполнен.")
}

// absorb adds the executions of a finished or withdrawn order to the current phase.
func (l *Lifecycle) absorb(fill models.Fill) {
	if l.partial == nil {
		l.partial = &fill
		return
	}
	merged := models.MergeFills(*l.partial, fill)
	l.partial = &merged
}

func (l *Lifecycle) collect(ctx context.Context, acceptanceID string) error {
	execs, err := l.client.Executions(ctx, l.cfg.Pair, acceptanceID, l.cfg.ExecutionCount)
	if err != nil {
		return fmt.Errorf("%w: %w", exchange.ErrExecutionQuery, err)
	}
	if fill, ok := models.FillFromExecutions(acceptanceID, execs); ok {
		l.absorb(fill)
	}
	return nil
}

// remaining is the lot the phase still has to trade: the configured lot to open, the opened lot to close.
func (l *Lifecycle) remaining(phase Phase) decimal.Decimal {
	target := l.cfg.Lot
	if phase == PhaseClosing && l.openFill != nil {
		target = l.openFill.Lot
	}
	if l.partial != nil {
		target = target.Sub(l.partial.Lot)
	}
	return target
}

// resubmit replaces the latest unfilled order and returns the order the watcher should follow.
// An order that could not be cancelled stays watched, so two live orders never coexist.
func (l *Lifecycle) resubmit() watched {
	old := l.ids[len(l.ids)-1]
	current := watched{id: old, size: l.size}

	if err := l.client.CancelOrder(l.ctx, l.cfg.Pair, old); err != nil {
		metrics.OrderCancels.WithLabelValues("failed").Inc()
		l.orderEntry(old).WithError(err).Warn("Просроченный ордер не отменён, продолжаем его ожидать.")
		return current
	}
	metrics.OrderCancels.WithLabelValues("ok").Inc()
	if err := l.collect(l.ctx, old); err != nil {
		l.orderEntry(old).WithError(err).Warn("Не удалось проверить исполнения отменённого ордера.")
		return current
	}

	size := l.remaining(l.phase)
	if !size.IsPositive() {
		l.commitFill()
		return watched{}
	}

	side := l.cfg.Side
	if l.phase == PhaseClosing {
		side = side.Opposite()
	}
	id, err := l.submit(l.ctx, side, l.limit, size)
	if err != nil {
		l.logEntry().WithError(err).Warn("Не удалось переставить ордер, повторим позже.")
		return current
	}
	l.ids = append(l.ids, id)
	l.size = size
	l.publish()
	metrics.OrderResubmits.Inc()
	l.orderEntry(id).WithFields(map[string]interface{}{
		"old_order_id": old,
		"lot":          size.String(),
	}).Info("Ордер не исполнен, переставлен.")
	return watched{id: id, size: size}
}

// abandon withdraws what is left of the current phase. Whatever already traded is kept: a partly
// filled entry becomes a position of that size, a partly filled exit leaves the rest to close.
func (l *Lifecycle) abandon(reason error) {
	start := 0
	rollback := StateInit
	if l.phase == PhaseClosing {
		start = l.closeStart
		rollback = StateHold
	}
	for _, id := range l.ids[start:] {
		if err := l.client.CancelOrder(l.ctx, l.cfg.Pair, id); err != nil {
			metrics.OrderCancels.WithLabelValues("failed").Inc()
			l.orderEntry(id).WithError(err).Warn("Не удалось отменить ордер.")
			continue
		}
		metrics.OrderCancels.WithLabelValues("ok").Inc()
	}
	if len(l.ids) > start {
		latest := l.ids[len(l.ids)-1]
		if err := l.collect(l.ctx, latest); err != nil {
			l.orderEntry(latest).WithError(err).Warn("Не удалось проверить исполнения отменённого ордера.")
		}
	}

	metrics.RetryExhausted.WithLabelValues(l.phase.String()).Inc()
	l.lastErr = reason

	if l.partial != nil && l.phase == PhaseClosing && !l.remaining(PhaseClosing).IsPositive() {
		l.commitFill()
		return
	}
	if l.partial != nil && l.phase == PhaseOpening {
		l.logEntry().WithError(reason).WithField("lot", l.partial.Lot.String()).Warn("Вход исполнен частично, позиция открыта на исполненный объём.")
		l.commitFill()
		return
	}

	phase := l.phase
	if err := l.transition(rollback); err != nil {
		l.logEntry().WithError(err).Error("Не удалось откатить состояние.")
		return
	}
	l.ids = l.ids[:start]
	l.phase = PhaseNone
	l.limit = nil
	if rollback == StateInit {
		l.partial = nil
	}
	l.publish()
	l.logEntry().WithError(reason).WithFields(map[string]interface{}{
		"phase": phase.String(),
		"state": l.state.String(),
	}).Error("Ордер так и не исполнен, состояние возвращено.")
}

func (l *Lifecycle) submit(ctx context.Context, side models.OrderSide, price *decimal.Decimal, size decimal.Decimal) (string, error) {
	health, err := l.client.Health(ctx, l.cfg.Pair)
	if err != nil {
		return "", fmt.Errorf("%w: %w", exchange.ErrVenueDegraded, err)
	}
	if !health.Status.Tradable() {
		return "", fmt.Errorf("%w: статус %q", exchange.ErrVenueDegraded, health.Status)
	}

	var limit decimal.Decimal
	if price != nil {
		limit = *price
	} else {
		ticker, err := l.client.Ticker(ctx, l.cfg.Pair)
		if err != nil {
			return "", fmt.Errorf("%w: %w", exchange.ErrQuoteUnavailable, err)
		}
		if side == models.OrderSideBuy {
			limit = ticker.BestBid.Add(l.cfg.Slippage)
		} else {
			limit = ticker.BestAsk.Sub(l.cfg.Slippage)
		}
	}
	if !limit.IsPositive() {
		return "", fmt.Errorf("%w: цена %s", exchange.ErrQuoteUnavailable, limit.String())
	}

	order := models.OrderRequest{
		Pair:          l.cfg.Pair,
		Side:          side,
		Type:          models.OrderTypeLimit,
		Price:         limit,
		Size:          size,
		TimeInForce:   l.cfg.TimeInForce,
		ExpiryMinutes: expiryMinutes(l.cfg.OrderTTL),
	}
	id, err := l.client.SubmitOrder(ctx, order)
	if err != nil {
		return "", fmt.Errorf("%w: %w", exchange.ErrSubmissionRejected, err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: пустой идентификатор ордера", exchange.ErrSubmissionRejected)
	}

	metrics.OrdersSubmitted.WithLabelValues(string(side)).Inc()
	l.orderEntry(id).WithFields(map[string]interface{}{
		"order_side": side,
		"price":      limit.String(),
		"lot":        size.String(),
	}).Info("Ордер отправлен.")
	return id, nil
}

func (l *Lifecycle) transition(to State) error {
	if !canTransition(l.state, to) {
		return fmt.Errorf("%w: переход %s -> %s", ErrPrecondition, l.state, to)
	}
	l.state = to
	return nil
}

func (l *Lifecycle) precondition(op string) error {
	err := fmt.Errorf("%w: %s в состоянии %s", ErrPrecondition, op, l.state)
	l.logEntry().WithError(err).Warn("Операция пропущена.")
	return err
}

func (l *Lifecycle) publish() {
	snap := Snapshot{
		ID:       l.id,
		Side:     l.cfg.Side,
		State:    l.state,
		Phase:    l.phase,
		OrderIDs: append([]string(nil), l.ids...),
		Err:      l.lastErr,
	}
	if l.openFill != nil {
		fill := *l.openFill
		snap.OpenFill = &fill
	}
	if l.closeFill != nil {
		fill := *l.closeFill
		snap.CloseFill = &fill
	}

	l.mu.Lock()
	l.view = snap
	l.mu.Unlock()
}

func (l *Lifecycle) logEntry() *logrus.Entry {
	return l.log.WithComponent("lifecycle").WithFields(logrus.Fields{
		"symbol":    l.cfg.Pair,
		"lifecycle": l.id,
		"side":      l.cfg.Side,
	})
}

func (l *Lifecycle) orderEntry(acceptanceID string) *logrus.Entry {
	return l.log.WithOrderID(acceptanceID).WithFields(logrus.Fields{
		"component": "lifecycle",
		"symbol":    l.cfg.Pair,
		"lifecycle": l.id,
		"side":      l.cfg.Side,
	})
}

func expiryMinutes(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	minutes := int((ttl + time.Minute - 1) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}
