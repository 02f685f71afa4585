/*
Package waiter adapts a descriptor queue to cooperative suspend/resume
concurrency: operations complete synchronously whenever they can, and
otherwise register one-shot readiness interest with a [Reactor], suspend,
and re-attempt on wake-up – the poll-and-wake pattern, with [context.Context]
carrying cancellation.

The engine owns all partial progress (staged entries, buffered descriptors,
byte-stream positions), so abandoning a suspended operation never loses or
leaks a descriptor; the next attempt continues exactly where things stand.

The reactor is consumed, not implemented, by this package;
[github.com/thediveo/fdferry/notify.Watch] is a ready-made implementation
delivering exactly one notification per registration.
*/
package waiter
