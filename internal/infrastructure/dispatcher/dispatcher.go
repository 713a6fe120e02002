package dispatcher

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"karte/internal/application/dto"
	portsin "karte/internal/application/ports/in"
	portsout "karte/internal/application/ports/out"
	"karte/internal/domain/entities"
)

const DefaultDebounce = 500 * time.Millisecond

type Completion = func(delivered bool)

// task is a unit of loop work. abandon runs instead when the dispatcher is
// stopped before the task was reached.
type task struct {
	run     func(ctx context.Context)
	abandon func()
}

type Options struct {
	Enqueue      portsin.EnqueueEventUseCase
	Dispatch     portsin.DispatchEventsUseCase
	Recover      portsin.RecoverEventsUseCase
	Connectivity portsout.ConnectivityObserver
	// Store is closed on Stop when set.
	Store    io.Closer
	Debounce time.Duration
	Logger   *log.Logger
}

// Dispatcher owns the serial execution context of the event queue. Every
// store access and module call happens on its single loop goroutine; other
// goroutines only post tasks onto it.
type Dispatcher struct {
	enqueue      portsin.EnqueueEventUseCase
	dispatch     portsin.DispatchEventsUseCase
	recover      portsin.RecoverEventsUseCase
	connectivity portsout.ConnectivityObserver
	store        io.Closer
	debounce     time.Duration
	logger       *log.Logger

	// Posting never blocks, so modules running on the loop may track.
	mu      sync.Mutex
	pending []task
	closed  bool
	wake    chan struct{}
	done    chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc

	// Loop-owned state.
	timer       *time.Timer
	deadline    time.Time
	completions map[int64]Completion
	rateLimited bool
	unsubscribe func()
}

func New(options Options) *Dispatcher {
	debounce := options.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Dispatcher{
		enqueue:      options.Enqueue,
		dispatch:     options.Dispatch,
		recover:      options.Recover,
		connectivity: options.Connectivity,
		store:        options.Store,
		debounce:     debounce,
		logger:       options.Logger,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		completions:  map[int64]Completion{},
	}
}

// Start launches the loop. It recovers records orphaned by a previous
// process and schedules a first drain.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		loopCtx, cancel := context.WithCancel(ctx)
		d.cancel = cancel

		if d.connectivity != nil {
			d.unsubscribe = d.connectivity.Subscribe(d.onConnectivityChanged)
		}
		go d.loop(loopCtx)

		d.post(func(ctx context.Context) {
			d.recoverInFlight(ctx)
			d.schedule(d.debounce)
		})
		d.logf("dispatcher started debounce=%s", d.debounce)
	})
}

// Push stores record and schedules a drain. completion, if set, is called
// exactly once from a separate goroutine with the delivery result.
func (d *Dispatcher) Push(record entities.EventRecord, completion Completion) {
	run := func(ctx context.Context) {
		if d.enqueue == nil {
			resolve(completion, false)
			return
		}
		output, appErr := d.enqueue.Execute(ctx, dto.EnqueueEventCommand{Record: record})
		if appErr != nil || !output.Stored {
			if appErr != nil {
				d.logf("event enqueue failed code=%s message=%s", appErr.Code, appErr.Message)
			}
			resolve(completion, false)
			return
		}
		if completion != nil {
			d.completions[output.RecordID] = completion
		}
		d.schedule(d.debounce)
	}
	abandon := func() {
		resolve(completion, false)
	}
	if !d.enqueueTask(task{run: run, abandon: abandon}) {
		abandon()
	}
}

// Schedule runs task on the loop after delay. It satisfies the rate limit's
// scheduler so budget returns happen on the serial context.
func (d *Dispatcher) Schedule(delay time.Duration, task func()) {
	time.AfterFunc(delay, func() {
		d.post(func(context.Context) {
			task()
		})
	})
}

// DispatchNow requests an immediate drain.
func (d *Dispatcher) DispatchNow() {
	d.post(func(context.Context) {
		d.schedule(0)
	})
}

// Stop tears the dispatcher down without flushing. Pending completions
// resolve as not delivered; their records stay queued for the next process.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		if d.cancel != nil {
			d.cancel()
			<-d.done
		}
		for _, abandoned := range d.takePending() {
			if abandoned.abandon != nil {
				abandoned.abandon()
			}
		}
		if d.unsubscribe != nil {
			d.unsubscribe()
		}
		for id, completion := range d.completions {
			delete(d.completions, id)
			resolve(completion, false)
		}
		if d.store != nil {
			if err := d.store.Close(); err != nil {
				d.logf("dispatcher store close warning error=%v", err)
			}
		}
		d.logf("dispatcher stopped")
	})
}

func (d *Dispatcher) loop(ctx context.Context) {
	defer close(d.done)
	for {
		var timerC <-chan time.Time
		if d.timer != nil {
			timerC = d.timer.C
		}

		select {
		case <-ctx.Done():
			d.cancelTimer()
			return
		case <-d.wake:
			for _, next := range d.takePending() {
				next.run(ctx)
			}
		case <-timerC:
			d.timer = nil
			d.deadline = time.Time{}
			d.drain(ctx)
		}
	}
}

func (d *Dispatcher) post(run func(ctx context.Context)) bool {
	return d.enqueueTask(task{run: run})
}

func (d *Dispatcher) enqueueTask(next task) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.pending = append(d.pending, next)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

func (d *Dispatcher) takePending() []task {
	d.mu.Lock()
	defer d.mu.Unlock()
	tasks := d.pending
	d.pending = nil
	return tasks
}

// schedule keeps a single pending drain at the earliest requested deadline,
// so a steady stream of pushes cannot postpone a drain indefinitely.
func (d *Dispatcher) schedule(delay time.Duration) {
	deadline := time.Now().Add(delay)
	if d.timer != nil && !d.deadline.After(deadline) {
		return
	}
	d.cancelTimer()
	d.timer = time.NewTimer(delay)
	d.deadline = deadline
}

func (d *Dispatcher) cancelTimer() {
	if d.timer == nil {
		return
	}
	d.timer.Stop()
	d.timer = nil
	d.deadline = time.Time{}
}

func (d *Dispatcher) drain(ctx context.Context) {
	if d.dispatch == nil {
		return
	}

	output, appErr := d.dispatch.Execute(ctx, dto.DispatchEventsCommand{
		OnBudgetRestored: d.onBudgetRestored,
	})
	d.resolveOutcomes(output.Outcomes)
	if appErr != nil {
		d.logf(
			"dispatch cycle failed code=%s message=%s details=%v",
			appErr.Code,
			appErr.Message,
			appErr.Details,
		)
		return
	}

	switch output.Skipped {
	case dto.DispatchSkippedOffline:
		return
	case dto.DispatchSkippedRateLimited:
		d.rateLimited = true
		return
	}

	if output.RetryAfter > 0 {
		d.schedule(output.RetryAfter)
	}
}

func (d *Dispatcher) resolveOutcomes(outcomes []dto.DispatchRecordOutcome) {
	for _, outcome := range outcomes {
		completion, exists := d.completions[outcome.RecordID]
		if !exists {
			continue
		}
		delete(d.completions, outcome.RecordID)
		resolve(completion, outcome.Delivered)
	}
}

// onBudgetRestored runs on the loop, via the rate limit's scheduler.
func (d *Dispatcher) onBudgetRestored() {
	if !d.rateLimited {
		return
	}
	d.rateLimited = false
	d.schedule(d.debounce)
}

func (d *Dispatcher) onConnectivityChanged(online bool) {
	d.post(func(context.Context) {
		if online {
			d.logf("connectivity restored scheduling drain delay=%s", d.debounce)
			d.schedule(d.debounce)
			return
		}
		d.logf("connectivity lost pending drain canceled")
		d.cancelTimer()
	})
}

func (d *Dispatcher) recoverInFlight(ctx context.Context) {
	if d.recover == nil {
		return
	}
	if _, appErr := d.recover.Execute(ctx, dto.RecoverEventsCommand{}); appErr != nil {
		d.logf("in-flight recovery failed code=%s message=%s", appErr.Code, appErr.Message)
	}
}

func resolve(completion Completion, delivered bool) {
	if completion == nil {
		return
	}
	go completion(delivered)
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d == nil || d.logger == nil {
		return
	}
	d.logger.Printf(format, args...)
}
