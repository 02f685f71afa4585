/*
Package ready adapts a descriptor queue to readiness-polling concurrency
models: before attempting an I/O-performing queue operation, the adaptor
consults a readiness [Source] for the queue's socket and short-circuits with
[ErrNotReady] – registering interest on the way out – when the socket isn't
ready anyway. This keeps hot polling loops from burning syscalls on sockets
that cannot make progress.

The readiness source itself is consumed, not implemented, by this package;
[github.com/thediveo/fdferry/notify.Watch] is a ready-made implementation
backed by epoll.
*/
package ready
