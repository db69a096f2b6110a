// Package looper provides the confinement loop that serializes every
// state-affecting operation of a camera session.
//
// A Looper owns one goroutine. Tasks posted to it run one at a time, in
// posting order, and each task receives a Token. The Token is the proof that
// the caller is running on the loop: it is valid only while the task that
// received it is executing, so code that mutates loop-owned state checks the
// Token at its entry point instead of relying on implicit goroutine affinity.
//
// The queue is unbounded. Posting from inside a task never blocks, which is
// what lets a task schedule follow-up work (for example teardown after a stop)
// without risking a deadlock on its own loop.
package looper

import (
	"bytes"
	"errors"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrWrongLoop is returned by Check when a token does not belong to the task
// currently running on the loop.
var ErrWrongLoop = errors.New("looper: not running on the owning loop")

// Token identifies one running task of a Looper.
type Token struct {
	l   *Looper
	seq uint64
}

// Task is a unit of work executed on the loop goroutine.
type Task func(tok Token)

// Poster is implemented by anything that can schedule work on a loop.
// Camera subsystems receive a Poster and use it to deliver their callbacks.
type Poster interface {
	Post(task Task) bool
}

// Looper is a single-goroutine task queue.
type Looper struct {
	name string

	mu      sync.Mutex
	queue   []Task
	quit    bool
	wake    chan struct{}
	done    chan struct{}
	current atomic.Uint64 // seq of the running task, 0 while idle
	seq     uint64        // owned by the loop goroutine
	gid     atomic.Uint64 // id of the loop goroutine, 0 until run starts
}

// New creates a Looper and starts its goroutine.
func New(name string) *Looper {
	l := &Looper{
		name: name,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Name returns the loop name given at construction.
func (l *Looper) Name() string {
	return l.name
}

// Post appends a task to the queue. It returns false if the loop has quit.
func (l *Looper) Post(task Task) bool {
	l.mu.Lock()
	if l.quit {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// PostDelayed posts task after d. The returned cancel function prevents the
// task from running if it has not started yet; it is safe to call from any
// goroutine and more than once.
func (l *Looper) PostDelayed(d time.Duration, task Task) (cancel func()) {
	var cancelled atomic.Bool
	timer := time.AfterFunc(d, func() {
		l.Post(func(tok Token) {
			if cancelled.Load() {
				return
			}
			task(tok)
		})
	})
	return func() {
		cancelled.Store(true)
		timer.Stop()
	}
}

// Sync posts task and waits until it has run. It returns false without
// waiting if the loop has quit. Called from the loop itself, Sync runs task
// inline with the current token instead of waiting on its own queue.
func (l *Looper) Sync(task Task) bool {
	if tok, ok := l.Current(); ok {
		task(tok)
		return true
	}
	ran := make(chan struct{})
	ok := l.Post(func(tok Token) {
		defer close(ran)
		task(tok)
	})
	if !ok {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// Check reports whether tok belongs to the task currently running on l.
func (l *Looper) Check(tok Token) error {
	if tok.l != l || tok.seq == 0 || l.current.Load() != tok.seq {
		return ErrWrongLoop
	}
	return nil
}

// OnLoop reports whether the caller is running on the loop goroutine.
func (l *Looper) OnLoop() bool {
	id := l.gid.Load()
	return id != 0 && id == goroutineID()
}

// Current returns the token of the running task when called from inside that
// task, so code reached without a token (for example a callback into user
// code) can still use the loop-only entry points. It returns false off the
// loop or while the loop is idle.
func (l *Looper) Current() (Token, bool) {
	if !l.OnLoop() {
		return Token{}, false
	}
	seq := l.current.Load()
	if seq == 0 {
		return Token{}, false
	}
	return Token{l: l, seq: seq}, true
}

// Quit stops accepting new tasks. Tasks already queued still run, then the
// loop goroutine exits and Done is closed.
func (l *Looper) Quit() {
	l.mu.Lock()
	l.quit = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the loop goroutine has exited.
func (l *Looper) Done() <-chan struct{} {
	return l.done
}

func (l *Looper) run() {
	defer close(l.done)
	l.gid.Store(goroutineID())

	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			quit := l.quit
			l.mu.Unlock()
			if quit {
				slog.Debug("looper: exiting", "name", l.name)
				return
			}
			<-l.wake
			continue
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.exec(task)
	}
}

func (l *Looper) exec(task Task) {
	l.seq++
	seq := l.seq
	l.current.Store(seq)
	defer l.current.Store(0)

	task(Token{l: l, seq: seq})
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the id from the "goroutine N [" header of the current
// stack. It returns 0 if the header cannot be parsed.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
