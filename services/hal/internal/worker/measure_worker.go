// services/hal/internal/worker/measure_worker.go
package worker

import (
	"context"
	"errors"
	"time"

	"imunode-go/services/hal/internal/halcore"
	"imunode-go/services/hal/internal/util"
)

// MeasureWorker owns one bus. Every adaptor call for devices on that bus
// runs on its goroutine, one at a time, so a device's write-then-read pairs
// never interleave with other traffic on the bus.
type MeasureWorker struct {
	cfg  halcore.WorkerConfig
	reqQ chan halcore.MeasureReq
	sink chan<- halcore.Result // fan-in sink owned by service

	pending  map[string]*collectItem
	want     map[string]bool
	collects []*collectItem
	timer    *time.Timer
}

type collectItem struct {
	id      string
	adaptor halcore.Adaptor
	due     time.Time
	retries int
}

func New(cfg halcore.WorkerConfig, sink chan<- halcore.Result) *MeasureWorker {
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = 100 * time.Millisecond
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = 250 * time.Millisecond
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 15 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 6
	}
	if cfg.InputQueueSize <= 0 {
		cfg.InputQueueSize = 16
	}
	return &MeasureWorker{
		cfg:     cfg,
		reqQ:    make(chan halcore.MeasureReq, cfg.InputQueueSize),
		sink:    sink,
		pending: map[string]*collectItem{},
		want:    map[string]bool{},
		timer:   time.NewTimer(time.Hour),
	}
}

// Submit queues req without blocking. Init and prio requests wait briefly
// for room before giving up.
func (w *MeasureWorker) Submit(req halcore.MeasureReq) bool {
	select {
	case w.reqQ <- req:
		return true
	default:
	}
	if req.Prio || req.Op == halcore.OpInit {
		select {
		case w.reqQ <- req:
			return true
		case <-time.After(5 * time.Millisecond):
		}
	}
	return false
}

func (w *MeasureWorker) Start(ctx context.Context) {
	if !w.timer.Stop() {
		util.DrainTimer(w.timer)
	}
	go w.loop(ctx)
}

func (w *MeasureWorker) loop(ctx context.Context) {
	for {
		next := w.minDue()
		if next.IsZero() {
			util.ResetTimer(w.timer, time.Hour)
		} else {
			util.ResetTimer(w.timer, time.Until(next))
		}
		select {
		case <-ctx.Done():
			return
		case req := <-w.reqQ:
			if req.Op == halcore.OpInit {
				// No timeout: bring-up has no interrupt point of its own.
				err := req.Adaptor.Init(ctx)
				w.emit(halcore.Result{ID: req.ID, Op: halcore.OpInit, Err: err})
				continue
			}
			if _, ok := w.pending[req.ID]; ok {
				if req.Prio {
					w.want[req.ID] = true
				}
				continue
			}
			w.trigger(ctx, &collectItem{id: req.ID, adaptor: req.Adaptor})
		case <-w.timer.C:
			w.collectDue(ctx, time.Now())
		}
	}
}

func (w *MeasureWorker) trigger(ctx context.Context, it *collectItem) bool {
	tctx, cancel := context.WithTimeout(ctx, w.cfg.TriggerTimeout)
	after, err := it.adaptor.Trigger(tctx)
	cancel()
	if err != nil {
		w.emit(halcore.Result{ID: it.id, Err: err})
		return false
	}
	it.retries = 0
	it.due = time.Now().Add(after)
	w.pending[it.id] = it
	w.collects = append(w.collects, it)
	return true
}

func (w *MeasureWorker) collectDue(ctx context.Context, now time.Time) {
	items := w.collects
	w.collects = nil
	for _, it := range items {
		if now.Before(it.due) {
			w.collects = append(w.collects, it)
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, w.cfg.CollectTimeout)
		s, err := it.adaptor.Collect(cctx)
		cancel()
		switch {
		case err == nil:
			delete(w.pending, it.id)
			delete(w.want, it.id)
			w.emit(halcore.Result{ID: it.id, Sample: s})
		case errors.Is(err, halcore.ErrNotReady) && it.retries < w.cfg.MaxRetries:
			it.retries++
			it.due = now.Add(w.cfg.RetryBackoff)
			w.collects = append(w.collects, it)
		default:
			delete(w.pending, it.id)
			w.emit(halcore.Result{ID: it.id, Sample: s, Err: err})
			if w.want[it.id] {
				delete(w.want, it.id)
				w.trigger(ctx, it)
			}
		}
	}
}

func (w *MeasureWorker) emit(r halcore.Result) {
	select {
	case w.sink <- r:
	default:
		w.sink <- r
	}
}

func (w *MeasureWorker) minDue() time.Time {
	var min time.Time
	for _, it := range w.collects {
		if min.IsZero() || it.due.Before(min) {
			min = it.due
		}
	}
	return min
}
