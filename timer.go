package quizengine

import (
	"context"
	"sync"
	"time"
)

// Ticker is the subset of time.Ticker the timer controller relies on
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// TimerController delivers one Tick per interval for the running countdown.
// It only produces ticks; the countdown itself lives in the session state so
// that warnings and the forced timeout are decided by the reducer.
type TimerController struct {
	mu        sync.Mutex
	interval  time.Duration
	newTicker TickerFactory
	cancel    context.CancelFunc
	epoch     int64
}

// NewTimerController creates a controller ticking once per second
func NewTimerController() *TimerController {
	return NewTimerControllerWith(time.Second, NewRealTicker)
}

// NewTimerControllerWith creates a controller with a custom interval and ticker
func NewTimerControllerWith(interval time.Duration, factory TickerFactory) *TimerController {
	return &TimerController{interval: interval, newTicker: factory}
}

// Start begins delivering Tick{Epoch: epoch} through deliver, replacing any
// countdown already running. deliver runs on the controller's goroutine.
func (tc *TimerController) Start(epoch int64, deliver func(Tick)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.cancel != nil {
		tc.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	tc.cancel = cancel
	tc.epoch = epoch

	ticker := tc.newTicker(tc.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				// A tick racing with Stop must not be delivered.
				if ctx.Err() != nil {
					return
				}
				deliver(Tick{Epoch: epoch})
			}
		}
	}()
	VerboseLog("Timer started for epoch %d", epoch)
}

// Stop halts ticking immediately. It never waits for the ticking goroutine,
// so it is safe to call while that goroutine is blocked delivering a tick.
func (tc *TimerController) Stop() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.cancel != nil {
		tc.cancel()
		tc.cancel = nil
		VerboseLog("Timer stopped for epoch %d", tc.epoch)
	}
}
