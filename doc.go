// Package valen is a hosted model of a small x86-64 kernel core.
//
// It bundles a bitmap physical frame allocator, a 4-level address-space
// mapper over simulated physical memory, a kernel heap, and a round-robin
// scheduler whose tasks run as cooperatively switched execution contexts.
// All kernel state lives in an explicit Kernel value:
//
//	k, _ := valen.New(valen.WithConfig(cfg))
//	_ = k.Boot(ctx)
//	_, _ = k.Spawn(func() { ...; k.Yield(); ... }, "worker")
//	err := k.Run(ctx)
//
// Run returns once every task has exited, the kernel halted on a fatal page
// fault, or ctx is done.
package valen
