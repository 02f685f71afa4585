/*
Package uds creates the peer-to-peer connected pairs of (stream) unix
domain sockets that descriptor queues ferry over: [Pair] for the raw socket
descriptors, [QueuePair] for a pair of readily connected
[github.com/thediveo/fdferry.Queue] instances.

Using stream unix domain sockets has the benefit of being able to detect
when the “other” side has disconnected.

# Trivia

“[UDS]” is short for “unix domain socket”.

[UDS]: https://en.wikipedia.org/wiki/Unix_domain_socket
*/
package uds
