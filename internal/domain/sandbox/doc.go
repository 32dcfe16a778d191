/*
Package sandbox provides the isolated execution context for fragment scripts
and the host-side manager that drives it.

# Overview

Each fragment runs in its own execution context: a goja JavaScript VM owned
by a single worker goroutine and driven purely by messages. The context has
no ambient host capabilities — no DOM, no network, no storage. Fragment
scripts build UI by calling the curated `ui` global, which emits DOM-mutation
operations into a stream the renderer consumes, and diagnose through a
captured `console`.

# Architecture

 1. Worker: one goroutine, one VM; receives Request envelopes on an inbox,
    answers Response envelopes correlated by id
 2. Manager: host-side controller; gates code through the security validator,
    assigns request ids, tracks pending requests with per-request timeouts,
    and owns the worker lifecycle
 3. Stream: operations emitted during execution (and operations transported
    via SendOperation/SendBatch) flow to the configured sink in order

# Lifecycle

A manager starts Uninitialized. Init boots a worker and waits for its ready
signal; boot failure leaves the manager inactive. Terminate interrupts the
VM, rejects every pending request with a termination error, and releases the
worker; in-flight work is abandoned, not drained. A terminated manager may be
Init-ed again and receives a fresh context.

# Security Model

Validation happens before execution: code rejected by the gate never reaches
the worker. The VM independently lacks the blocked capabilities, so the gate
is a cheap early rejection, not the only barrier. Runaway scripts are stopped
by VM interrupt when their execution budget expires.

# Usage Example

	mgr := sandbox.NewManager(sandbox.Config{
		ExecTimeout: 5 * time.Second,
		Gate:        gate,
		Sink:        func(op protocol.Operation) { renderer.Apply(op) },
	})

	if err := mgr.Init(ctx); err != nil {
		return err
	}
	defer mgr.Terminate()

	if err := mgr.Execute(ctx, script); err != nil {
		log.Error("Execution failed", zap.Error(err))
	}
*/
package sandbox
