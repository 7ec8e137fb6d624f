/*
Package mailbox implements Hearth's per-process signal queue: FIFO
delivery of Message and Down signals, monitor/down-signal
wiring, and fan-in receive across many mailboxes.

	┌────────────────── MAILBOX ───────────────────┐
	│  queue: [Signal, Signal, ...]  (FIFO, no drop) │
	│                                                 │
	│  Send(cap, payload, caps) ──▶ enqueue Message  │
	│  Monitor(cap)             ──▶ watch a route,   │
	│                                enqueue Down     │
	│                                when it dies     │
	│  Recv(ctx) / TryRecv() / Poll(ctx, mailboxes)  │
	└─────────────────────────────────────────────────┘

Unlike a broadcast pub/sub broker that drops to many subscribers on a full
buffer, a mailbox has exactly one consumer and never drops: every accepted
signal is delivered exactly once, in order, for messages from the same
sender.

A LocalRoute adapts a *Mailbox to the capability.Route interface so it can
sit behind a capability.Handle; RemoteRoute, in pkg/peer, is the other
implementation, standing in for a mailbox that lives on a different peer.
*/
package mailbox
