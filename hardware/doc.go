// Package hardware is the base package for the simulated machine. Its
// sub-packages contain everything required for a headless, deterministic
// simulation of a single microcontroller: the address bus and memory-mapped
// peripherals (memory), the CPU cores (cpu), the shared interrupt state
// (interrupt), and the immutable program image consumed at load time
// (image). The run loop that binds one CPU to one bus is the top-level
// machine package.
//
// From here, a simulation can either be stepped instruction by instruction
// or run continuously until a stop condition is reached.
package hardware
