// Package vm implements the MIPS32 fetch-decode-execute engine for sbmips.
//
// A Machine owns a flat byte-addressable memory, the 32 general-purpose
// registers, the program counter, and the hi/lo accumulators. Step runs
// exactly one instruction to completion; Run steps until the machine
// leaves the Running state. Faults are terminal and carry the exact
// reason plus the program counter at which they occurred.
//
// Host integration is pluggable: a SyscallHandler receives syscall traps
// and a StoreWatcher observes retired stores, so memory-mapped console
// and halt conventions live outside the engine.
package vm
