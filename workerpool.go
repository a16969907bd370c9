package tinyhttp

import (
	"net"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// workerPool serves incoming connections via a pool of workers
// in FILO order, i.e. the most recently stopped worker will serve the next
// incoming connection.
//
// Such a scheme keeps CPU caches hot (in theory).
type workerPool struct {
	// Function for serving server connections.
	// It must leave c unclosed.
	WorkerFunc            ServeHandler
	MaxWorkersCount       int
	LogAllErrors          bool
	MaxIdleWorkerDuration time.Duration
	Logger                *zerolog.Logger
	Trace                 *ServerTrace

	lock         sync.Mutex
	workersCount int
	mustStop     bool

	ready []*workerChan

	stopCh chan struct{}

	workerChanPool sync.Pool
}

type workerChan struct {
	lastUseTime time.Time
	ch          chan net.Conn
}

func (wp *workerPool) Start() {
	if wp.stopCh != nil {
		panic("BUG: workerPool already started")
	}
	if wp.MaxIdleWorkerDuration <= 0 {
		wp.MaxIdleWorkerDuration = 10 * time.Second
	}
	wp.stopCh = make(chan struct{})
	stopCh := wp.stopCh
	wp.workerChanPool.New = func() interface{} {
		return &workerChan{
			ch: make(chan net.Conn, workerChanCap),
		}
	}
	go func() {
		var scratch []*workerChan
		for {
			wp.clean(&scratch)
			select {
			case <-stopCh:
				return
			case <-time.After(wp.MaxIdleWorkerDuration):
			}
		}
	}()
}

// Stop stops idle workers. Busy workers exit after serving their
// current connection.
func (wp *workerPool) Stop() {
	if wp.stopCh == nil {
		panic("BUG: workerPool wasn't started")
	}
	close(wp.stopCh)
	wp.stopCh = nil

	wp.lock.Lock()
	ready := wp.ready
	for i := range ready {
		ready[i].ch <- nil
		ready[i] = nil
	}
	wp.ready = ready[:0]
	wp.mustStop = true
	wp.lock.Unlock()
}

// clean stops the workers idle for longer than MaxIdleWorkerDuration.
func (wp *workerPool) clean(scratch *[]*workerChan) {
	criticalTime := time.Now().Add(-wp.MaxIdleWorkerDuration)

	wp.lock.Lock()
	ready := wp.ready
	// ready is sorted by lastUseTime, the least recently used go first.
	i := sort.Search(len(ready), func(i int) bool {
		return !ready[i].lastUseTime.Before(criticalTime)
	})
	*scratch = append((*scratch)[:0], ready[:i]...)
	if i > 0 {
		m := copy(ready, ready[i:])
		for j := m; j < len(ready); j++ {
			ready[j] = nil
		}
		wp.ready = ready[:m]
	}
	wp.lock.Unlock()

	// Notify obsolete workers outside the lock, since ch.ch may block
	// if the channel is unbuffered.
	tmp := *scratch
	for i := range tmp {
		tmp[i].ch <- nil
		tmp[i] = nil
	}
}

func (wp *workerPool) Serve(c net.Conn) bool {
	ch := wp.getCh()
	if ch == nil {
		return false
	}
	if wp.Trace != nil && wp.Trace.GotConn != nil {
		wp.Trace.GotConn(c)
	}
	ch.ch <- c
	return true
}

var workerChanCap = func() int {
	// Use blocking workerChan if GOMAXPROCS=1.
	// This immediately switches Serve to WorkerFunc.
	if runtime.GOMAXPROCS(0) == 1 {
		return 0
	}

	// Use non-blocking workerChan if GOMAXPROCS>1,
	// since otherwise the Serve caller (Acceptor) may lag accepting
	// new connections if WorkerFunc is CPU-bound.
	return 1
}()

func (wp *workerPool) getCh() *workerChan {
	var ch *workerChan
	createWorker := false

	wp.lock.Lock()
	ready := wp.ready
	n := len(ready) - 1
	if n < 0 {
		if wp.workersCount < wp.MaxWorkersCount {
			createWorker = true
			wp.workersCount++
		}
	} else {
		ch = ready[n]
		ready[n] = nil
		wp.ready = ready[:n]
	}
	wp.lock.Unlock()

	if ch == nil {
		if !createWorker {
			return nil
		}
		vch := wp.workerChanPool.Get()
		ch = vch.(*workerChan)
		go func() {
			wp.workerFunc(ch)
			wp.workerChanPool.Put(vch)
		}()
	}
	return ch
}

// release puts ch back to the ready stack. false is returned if the pool
// is stopping, and the worker must exit then.
func (wp *workerPool) release(ch *workerChan) bool {
	ch.lastUseTime = time.Now()
	wp.lock.Lock()
	if wp.mustStop {
		wp.lock.Unlock()
		return false
	}
	wp.ready = append(wp.ready, ch)
	wp.lock.Unlock()
	return true
}

func (wp *workerPool) workerFunc(ch *workerChan) {
	for c := range ch.ch {
		if c == nil {
			break
		}

		if err := wp.WorkerFunc(c); err != nil && wp.shouldLog(err) {
			wp.Logger.Error().Err(err).Msgf("error when serving connection %q<->%q", c.LocalAddr(), c.RemoteAddr())
		}
		_ = c.Close()
		if wp.Trace != nil && wp.Trace.ClosedConn != nil {
			wp.Trace.ClosedConn(c)
		}

		if !wp.release(ch) {
			break
		}
	}

	wp.lock.Lock()
	wp.workersCount--
	wp.lock.Unlock()
}

func (wp *workerPool) shouldLog(err error) bool {
	if wp.LogAllErrors {
		return true
	}
	if errors.Is(err, ErrIncompleteHead) || errors.Is(err, ErrIncompleteBody) ||
		errors.Is(err, ErrMalformedRequestLine) || errors.Is(err, ErrHeadTooLarge) ||
		errors.Is(err, ErrBodyTooLarge) || errors.Is(err, ErrBadRequest) || errors.Is(err, ErrNotImplemented) {
		return false
	}
	errStr := err.Error()
	return !(strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "reset by peer") ||
		strings.Contains(errStr, "unexpected EOF") ||
		strings.Contains(errStr, "i/o timeout"))
}
