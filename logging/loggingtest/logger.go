// Package loggingtest provides a logrus hook for tests that need to wait
// for, or count, application log entries.
package loggingtest

import (
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

type logSubscription struct {
	exp      string
	n        int
	response chan<- struct{}
}

type countMessage struct {
	exp      string
	response chan<- int
}

type logWatch struct {
	entries []string
	reqs    []*logSubscription
}

// TestLogger collects the messages of the loggers it is installed on.
type TestLogger struct {
	save   chan string
	notify chan<- logSubscription
	count  chan<- countMessage
	clear  chan struct{}
	mute   chan bool
	quit   chan<- struct{}
}

var ErrWaitTimeout = errors.New("timeout")

func (lw *logWatch) save(e string) {
	lw.entries = append(lw.entries, e)
	for i := len(lw.reqs) - 1; i >= 0; i-- {
		req := lw.reqs[i]
		if strings.Contains(e, req.exp) {
			req.n--
			if req.n <= 0 {
				close(req.response)
				lw.reqs = append(lw.reqs[:i], lw.reqs[i+1:]...)
			}
		}
	}
}

func (lw *logWatch) notify(req logSubscription) {
	for i := len(lw.entries) - 1; i >= 0; i-- {
		if strings.Contains(lw.entries[i], req.exp) {
			req.n--
			if req.n == 0 {
				break
			}
		}
	}

	if req.n <= 0 {
		close(req.response)
	} else {
		lw.reqs = append(lw.reqs, &req)
	}
}

func (lw *logWatch) count(exp string) int {
	var n int
	for _, e := range lw.entries {
		if strings.Contains(e, exp) {
			n++
		}
	}

	return n
}

func (lw *logWatch) clear() {
	lw.entries = nil
	lw.reqs = nil
}

// New starts a test logger. It needs to be closed.
func New() *TestLogger {
	lw := &logWatch{}
	save := make(chan string)
	notify := make(chan logSubscription)
	count := make(chan countMessage)
	clear := make(chan struct{})
	mute := make(chan bool)
	quit := make(chan struct{})

	go func() {
		var muted bool
		for {
			select {
			case e := <-save:
				if !muted {
					lw.save(e)
				}
			case req := <-notify:
				lw.notify(req)
			case m := <-count:
				m.response <- lw.count(m.exp)
			case <-clear:
				lw.clear()
			case muted = <-mute:
			case <-quit:
				return
			}
		}
	}()

	return &TestLogger{save, notify, count, clear, mute, quit}
}

// Install adds the test logger as a hook to l, and returns a function
// that removes it.
func (tl *TestLogger) Install(l *log.Logger) func() {
	original := l.ReplaceHooks(make(log.LevelHooks))
	l.AddHook(tl)
	return func() { l.ReplaceHooks(original) }
}

// Levels implements the logrus.Hook interface.
func (tl *TestLogger) Levels() []log.Level { return log.AllLevels }

// Fire implements the logrus.Hook interface.
func (tl *TestLogger) Fire(e *log.Entry) error {
	tl.save <- e.Message
	return nil
}

// WaitForN waits until n entries containing exp were logged.
func (tl *TestLogger) WaitForN(exp string, n int, to time.Duration) error {
	found := make(chan struct{}, 1)
	tl.notify <- logSubscription{exp, n, found}

	select {
	case <-found:
		return nil
	case <-time.After(to):
		return ErrWaitTimeout
	}
}

// WaitFor waits until an entry containing exp was logged.
func (tl *TestLogger) WaitFor(exp string, to time.Duration) error {
	return tl.WaitForN(exp, 1, to)
}

// Count returns how many entries containing exp were logged.
func (tl *TestLogger) Count(exp string) int {
	rsp := make(chan int, 1)
	tl.count <- countMessage{exp, rsp}
	return <-rsp
}

func (tl *TestLogger) Reset()  { tl.clear <- struct{}{} }
func (tl *TestLogger) Mute()   { tl.mute <- true }
func (tl *TestLogger) Unmute() { tl.mute <- false }
func (tl *TestLogger) Close()  { close(tl.quit) }
