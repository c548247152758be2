// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package pins forwards pin state changes of a core to observers.
//
// Each subscription owns its own IRQ hook, so any number of observers may
// watch the same pin, including the same callback twice, and each can be
// removed on its own. Callbacks run synchronously inside the simulation
// step that changed the pin; they must be short and must not drive the
// session themselves.
package pins

import (
	"slices"
	"strconv"

	"go.uber.org/zap"

	"github.com/ezrec/simduino/cpu"
	"github.com/ezrec/simduino/internal"
)

// Callback observes a pin transition. It is a plain function so that it can
// be bridged to foreign callers.
type Callback func(port byte, pin uint8, value uint8)

// Source provides pin IRQs, normally a cpu.Engine.
type Source interface {
	PinIRQ(port byte, pin uint8) (*cpu.IRQ, error)
}

// Key identifies a pin.
type Key struct {
	Port byte
	Pin  uint8
}

func (k Key) String() string {
	return "P" + string(rune(k.Port)) + strconv.Itoa(int(k.Pin))
}

// Subscription is one registered observer.
type Subscription struct {
	Key
	Context  any // Opaque value supplied at registration.
	Callback Callback

	irq  *cpu.IRQ
	hook *cpu.Notify
}

// Bridge maps pins to their subscriptions.
type Bridge struct {
	source Source
	subs   map[Key][]*Subscription
	closed bool
}

// New creates a bridge for a pin source.
func New(source Source) *Bridge {
	return &Bridge{
		source: source,
		subs:   make(map[Key][]*Subscription),
	}
}

// ParsePin parses a pin name such as "B5" or "PB5".
func ParsePin(name string) (port byte, pin uint8, err error) {
	if len(name) == 3 && name[0] == 'P' {
		name = name[1:]
	}
	if len(name) != 2 || name[1] < '0' || name[1] > '9' {
		err = ErrPinName(name)
		return
	}

	port, pin = name[0], name[1]-'0'
	err = validate(port, pin)
	return
}

func validate(port byte, pin uint8) (err error) {
	if port < 'A' || port > 'Z' {
		err = &ErrPin{Port: port, Pin: pin, Err: ErrPortInvalid}
		return
	}
	if pin >= cpu.PORT_PINS {
		err = &ErrPin{Port: port, Pin: pin, Err: ErrPinInvalid}
		return
	}
	return
}

// Subscribe calls cb with every transition of pin on port.
func (b *Bridge) Subscribe(port byte, pin uint8, cb Callback, ctx any) (sub *Subscription, err error) {
	if b.closed {
		err = ErrBridgeClosed
		return
	}

	err = validate(port, pin)
	if err != nil {
		return
	}

	if cb == nil {
		err = &ErrPin{Port: port, Pin: pin, Err: ErrCallbackNil}
		return
	}

	irq, err := b.source.PinIRQ(port, pin)
	if err != nil {
		err = &ErrPin{Port: port, Pin: pin, Err: err}
		return
	}

	sub = &Subscription{
		Key:      Key{Port: port, Pin: pin},
		Context:  ctx,
		Callback: cb,
		irq:      irq,
	}
	sub.hook = irq.RegisterNotify(forward, sub)

	b.subs[sub.Key] = append(b.subs[sub.Key], sub)

	internal.Logger().Debug("pins: subscribe",
		zap.Stringer("pin", sub.Key),
		zap.Int("subscribers", len(b.subs[sub.Key])))

	return
}

// forward adapts an IRQ notification to the subscription's callback.
func forward(irq *cpu.IRQ, value uint32, param any) {
	sub := param.(*Subscription)
	sub.Callback(sub.Port, sub.Pin, uint8(value))
}

// Unsubscribe removes one subscription. It returns false if sub was not
// registered with this bridge.
func (b *Bridge) Unsubscribe(sub *Subscription) (ok bool) {
	if sub == nil {
		return
	}

	list := b.subs[sub.Key]
	n := slices.Index(list, sub)
	if n < 0 {
		return
	}

	sub.irq.UnregisterNotify(sub.hook)
	list = slices.Delete(list, n, n+1)
	if len(list) == 0 {
		delete(b.subs, sub.Key)
	} else {
		b.subs[sub.Key] = list
	}

	ok = true
	return
}

// Subscriptions returns the live subscriptions of a pin.
func (b *Bridge) Subscriptions(port byte, pin uint8) []*Subscription {
	return slices.Clone(b.subs[Key{Port: port, Pin: pin}])
}

// Len returns the number of live subscriptions.
func (b *Bridge) Len() (count int) {
	for _, list := range b.subs {
		count += len(list)
	}
	return
}

// Close removes every subscription. Later subscriptions fail.
func (b *Bridge) Close() {
	for _, list := range b.subs {
		for _, sub := range list {
			sub.irq.UnregisterNotify(sub.hook)
		}
	}
	clear(b.subs)
	b.closed = true
}
