// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package cpu implements the simulated AVR core driven by the simduino host.
//
// The core executes a compact subset of the AVR instruction set, enough to
// run simple bootloaders and blink-and-sleep firmware. Each variant is a
// named memory and port layout; variants register themselves with Register
// and are allocated by name with New.
//
// The host drives a core through the Engine interface: Init attaches the
// Persistence capability that backs flash, Run advances one instruction,
// and Terminate detaches persistence exactly once. Writes to PORTx raise
// per-pin IRQs that observers subscribe to with IRQ.RegisterNotify.
package cpu
