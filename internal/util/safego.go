package util

import (
	"runtime/debug"
	"sync"

	"github.com/rccstake/rccstake/internal/logging"
)

// Go runs fn on a new goroutine, recovering and logging any panic with the
// goroutine's name and stack. Use it instead of bare go statements.
func Go(name string, fn func()) {
	go func() {
		defer recoverPanic(name)
		fn()
	}()
}

// GoGroup is Go plus wg bookkeeping: wg.Add(1) before start, wg.Done() on exit.
func GoGroup(wg *sync.WaitGroup, name string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer recoverPanic(name)
		fn()
	}()
}

func recoverPanic(name string) {
	if r := recover(); r != nil {
		logging.Error("goroutine panic recovered",
			"goroutine", name,
			"panic", r,
			"stack", string(debug.Stack()),
		)
	}
}
