package worker

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type keyQueue struct {
	jobs     []Job
	enqueued bool
}

// Config sizes the dispatcher.
type Config struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

// Dispatcher runs background jobs on a bounded goroutine pool, serving keys
// round-robin so one busy chat cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job
	cancel   context.CancelFunc
	quit     chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	pending   int
	limit     int
	queues    map[string]*keyQueue // job queue for each key
	ready     *list.List           // LRU queue storing keys
	positions map[string]*list.Element
}

func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	pool := newJobChannelPool(ctx, cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout)

	d := &Dispatcher{
		pool:      pool,
		jobQueue:  make(chan Job, cfg.QueueSize),
		cancel:    cancel,
		quit:      make(chan struct{}),
		limit:     cfg.QueueSize,
		queues:    make(map[string]*keyQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
	}

	// Warm up workers.
	for i := 0; i < pool.min; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues a job without blocking. It fails with ErrDispatcherBusy when
// QueueSize jobs are already waiting for a worker.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case <-d.quit:
		return ErrDispatcherStopped
	default:
	}
	d.mu.Lock()
	if d.pending >= d.limit {
		d.mu.Unlock()
		return ErrDispatcherBusy
	}
	d.pending++
	d.mu.Unlock()

	select {
	case d.jobQueue <- job:
		return nil
	default:
		d.mu.Lock()
		d.pending--
		d.mu.Unlock()
		return ErrDispatcherBusy
	}
}

// Stop cancels the context handed to running jobs and drops queued ones.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
		d.cancel()
		d.pool.close()
	})
}

func (d *Dispatcher) run() {
	for {
		// dispatch one job of the key in the front of LRU queue
		if !d.dispatchOne() {
			select {
			case job := <-d.jobQueue: // force congestion
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		// if we have a new job, enqueue it and its key
		select {
		case job := <-d.jobQueue: // non-congestion
			d.enqueueJob(job)
		case <-d.quit:
			return
		default:
		}
	}
}

// CancelKey drops queued jobs of the key. Running jobs are not interrupted.
func (d *Dispatcher) CancelKey(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if q, ok := d.queues[key]; ok {
		d.pending -= len(q.jobs)
		delete(d.queues, key)
	}
	if elem, ok := d.positions[key]; ok {
		d.ready.Remove(elem)
		delete(d.positions, key)
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Key]
	if q == nil {
		q = &keyQueue{}
		d.queues[job.Key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		// key already enqueued, skip
		return
	}
	// new key, enqueue
	q.enqueued = true
	elem := d.ready.PushBack(job.Key)
	d.positions[job.Key] = elem
}

// dispatchOne get first key in LRU and dispatch its job
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	key := elem.Value.(string)
	q := d.queues[key]
	// get job from the first key
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		// key only had one job, it'll be handled, key needs to quit queue
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, key)
		delete(d.queues, key)
	} else {
		// get to the back of queue
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	if workerChan == nil {
		return false
	}
	d.mu.Lock()
	d.pending--
	d.mu.Unlock()
	debugLog("assign job", "kind", job.Kind, "key", key)
	select {
	case workerChan <- job:
	case <-d.quit:
		return false
	}
	return true
}
