/*
Package fdferry ferries open file descriptors between processes over
connected unix domain stream sockets, turning the finicky SCM_RIGHTS
kernel machinery into ordered, backpressured queue operations.

The [Queue] stages descriptors for sending without any I/O ([Queue.Enqueue],
bounded by a fixed capacity), sends all staged descriptors in exactly one
batched sendmsg ([Queue.Flush]), and hands out received descriptors strictly
in the order the peer enqueued them ([Queue.Dequeue]). Every transferred
descriptor is accompanied on the wire by exactly one byte of ordinary
payload – the kernel insists on at least one – and the queue advances both
streams in lockstep: a descriptor is never dequeued before its companion
byte has been consumed, and a descriptor silently dropped by the kernel
(ancillary buffer truncation) surfaces as a distinct [ErrTruncated] while
the byte stream still advances past the loss.

All descriptors are held through move-only [Handle] ownership: whatever the
queue currently owns – staged, in-transit, or buffered – gets closed exactly
once, at the latest on [Queue.Close]. No leaks, no double closes, on any
error path.

# Concurrency Models

The Queue itself is single-threaded and blocking-call-shaped; it never
spawns goroutines. Two small adaptor packages layer the usual concurrency
models on top:

  - [github.com/thediveo/fdferry/ready] for readiness-polling loops,
    consulting a readiness source before each attempt;
  - [github.com/thediveo/fdferry/waiter] for suspend/resume operation with
    contexts, registering for exactly one wake-up per would-block.

The [github.com/thediveo/fdferry/notify] package provides an epoll-based
implementation of both adaptor boundaries, and
[github.com/thediveo/fdferry/uds] creates the connected socket pairs to
ferry over in the first place.

# Trivia

The companion bytes on the wire read 0xfd. Of course they do.
*/
package fdferry
