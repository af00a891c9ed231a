package websocket

import "github.com/sirupsen/logrus"

// dispatcher is the per-connection mailbox. One goroutine consumes jobs and
// runs each to completion before pulling the next, so handlers for the same
// connection are fully serialized, including their store and bus I/O.
// Handlers for different connections run on independent dispatchers.
type dispatcher struct {
	jobs chan func()
	done chan struct{}
}

func newDispatcher(depth int) *dispatcher {
	d := &dispatcher{
		jobs: make(chan func(), depth),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) run() {
	defer close(d.done)
	for job := range d.jobs {
		runJob(job)
	}
}

// runJob isolates handler failures: a panic is logged and the queue keeps
// consuming.
func runJob(job func()) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("Message handler panicked")
		}
	}()
	job()
}

// enqueue returns false when the mailbox is full; the message is lost, the
// connection stays usable.
func (d *dispatcher) enqueue(job func()) bool {
	select {
	case d.jobs <- job:
		return true
	default:
		return false
	}
}

// close stops intake and waits for queued jobs to finish. Only the owning
// read loop may call enqueue or close.
func (d *dispatcher) close() {
	close(d.jobs)
	<-d.done
}
