/*
Package rights encodes and decodes the SCM_RIGHTS control messages that
carry file descriptors across unix domain sockets, and it owns the one seam
where platform-dependent ancillary buffer sizing and alignment happens.

A [Layout] is computed once, for the maximum number of descriptors a single
message may carry, and then reused: [Layout.Encode] turns descriptors into
the ancillary data for a sendmsg, [Parse] turns received ancillary data back
into descriptors, skipping any interspersed non-rights control messages
(such as SCM_CREDENTIALS). [Truncated] tells from the recvmsg flags whether
the kernel silently dropped descriptors on the way in.

This package deals in raw descriptor values only; ownership bookkeeping is
the business of the importing descriptor queue (see the fdferry package).
*/
package rights
