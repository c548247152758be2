// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"slices"
)

// NotifyFunc observes value changes of an IRQ.
type NotifyFunc func(irq *IRQ, value uint32, param any)

// Notify is a registered IRQ observer.
type Notify struct {
	fn    NotifyFunc
	param any
}

// IRQ is a named signal line. Observers are only notified when the
// value changes.
type IRQ struct {
	Name  string
	Value uint32

	hooks []*Notify
}

// NewIRQ creates a named IRQ line at value zero.
func NewIRQ(name string) *IRQ {
	return &IRQ{Name: name}
}

// RegisterNotify adds an observer. Registering the same function twice
// yields two independent observers.
func (irq *IRQ) RegisterNotify(fn NotifyFunc, param any) (hook *Notify) {
	hook = &Notify{fn: fn, param: param}
	irq.hooks = append(irq.hooks, hook)
	return
}

// UnregisterNotify removes one observer, returning false if it was not present.
func (irq *IRQ) UnregisterNotify(hook *Notify) (ok bool) {
	n := slices.Index(irq.hooks, hook)
	if n < 0 {
		return
	}

	irq.hooks = slices.Delete(irq.hooks, n, n+1)
	ok = true
	return
}

// Hooks returns the number of registered observers.
func (irq *IRQ) Hooks() int {
	return len(irq.hooks)
}

// Raise sets the IRQ value and calls every observer, in registration
// order, if it changed. Observers may unregister themselves while called.
func (irq *IRQ) Raise(value uint32) {
	if irq.Value == value {
		return
	}
	irq.Value = value

	for _, hook := range slices.Clone(irq.hooks) {
		hook.fn(irq, value, hook.param)
	}
}
