package server

import (
	"errors"
	"runtime/debug"

	"github.com/ValentinKolb/hashserv/lib/queue"
	"github.com/lni/dragonboat/v4/logger"
)

var dispatcherLogger = logger.GetLogger("dispatcher")

// ErrDispatcherClosed is returned for jobs submitted after the dispatcher stopped
var ErrDispatcherClosed = errors.New("dispatcher is closed")

var errJobPanicked = errors.New("request handler panicked")

// job is one unit of work executed by the dispatcher worker
type job struct {
	run     func() error
	onPanic func() error
	done    chan error
}

// dispatcher runs all jobs on a single worker goroutine in the order they
// were submitted. Every job that touches the store goes through it, so there
// is never more than one store operation in flight.
type dispatcher struct {
	queue   *queue.MPSC[job]
	stopped chan struct{}

	// called with the recovered value when a job panics
	panicHook func(recovered any)
}

func newDispatcher(panicHook func(any)) *dispatcher {
	d := &dispatcher{
		queue:     queue.NewMPSC[job](),
		stopped:   make(chan struct{}),
		panicHook: panicHook,
	}
	go d.work()
	return d
}

// Do runs fn on the worker and waits for it to finish. If fn panics, the panic
// is logged and onPanic runs on the worker instead. It returns the error of
// fn (or onPanic), or ErrDispatcherClosed.
func (d *dispatcher) Do(fn func() error, onPanic func() error) error {
	j := &job{
		run:     fn,
		onPanic: onPanic,
		done:    make(chan error, 1),
	}
	if !d.queue.Push(j) {
		return ErrDispatcherClosed
	}

	select {
	case err := <-j.done:
		return err
	case <-d.stopped:
		// the worker may have finished the job right before stopping
		select {
		case err := <-j.done:
			return err
		default:
			return ErrDispatcherClosed
		}
	}
}

// Len returns the number of queued jobs
func (d *dispatcher) Len() int {
	return d.queue.Len()
}

// Close stops accepting jobs and waits until the queued ones were executed
func (d *dispatcher) Close() {
	d.queue.Close()
	<-d.stopped
}

func (d *dispatcher) work() {
	defer close(d.stopped)

	for j := range d.queue.Recv() {
		j.done <- d.execute(j)
	}
	dispatcherLogger.Debugf("Worker stopped, queue drained")
}

func (d *dispatcher) execute(j *job) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		dispatcherLogger.Errorf("Recovered from panic in request: %v\n%s", r, debug.Stack())
		if d.panicHook != nil {
			d.panicHook(r)
		}
		if j.onPanic == nil {
			err = errJobPanicked
			return
		}
		err = d.executeFallback(j)
	}()

	return j.run()
}

// executeFallback runs the panic handler of a job. A second panic drops the connection.
func (d *dispatcher) executeFallback(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			dispatcherLogger.Errorf("Recovered from panic in panic handler: %v", r)
			err = errJobPanicked
		}
	}()
	return j.onPanic()
}
