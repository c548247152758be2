// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package shutdown turns an operator interrupt into a cooperative stop
// request.
//
// The run loop polls Stopped between steps; a step in progress is never
// interrupted. Only os.Interrupt is handled.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ezrec/simduino/internal"
	"github.com/ezrec/simduino/translate"
)

var f = translate.From

// Controller holds the stop request flag.
type Controller struct {
	stop   atomic.Bool
	caught atomic.Int32

	signals chan os.Signal
	done    chan struct{}
	once    sync.Once
}

// New creates a controller with no stop requested.
func New() *Controller {
	return &Controller{}
}

// Install starts handling os.Interrupt. Call Close to stop.
func (c *Controller) Install() {
	if c.signals != nil {
		return
	}

	c.signals = make(chan os.Signal, 2)
	c.done = make(chan struct{})
	signal.Notify(c.signals, os.Interrupt)

	go func() {
		defer close(c.done)
		for sig := range c.signals {
			c.handle(sig)
		}
	}()
}

// handle processes one signal delivery.
func (c *Controller) handle(sig os.Signal) {
	c.caught.Add(1)

	if c.stop.CompareAndSwap(false, true) {
		internal.Logger().Warn(f("Signal caught, simduino terminating"), zap.Stringer("signal", sig))
	} else {
		internal.Logger().Warn(f("Signal caught again, ignoring..."), zap.Stringer("signal", sig))
	}
}

// Request asks the run loop to stop.
func (c *Controller) Request() {
	c.stop.Store(true)
}

// Stopped reports whether a stop has been requested.
func (c *Controller) Stopped() bool {
	return c.stop.Load()
}

// Caught returns the number of interrupts delivered.
func (c *Controller) Caught() int {
	return int(c.caught.Load())
}

// Close stops signal handling. It is safe to call more than once.
func (c *Controller) Close() {
	c.once.Do(func() {
		if c.signals == nil {
			return
		}
		signal.Stop(c.signals)
		close(c.signals)
		<-c.done
	})
}
