/*
Package main provides the command for running a descriptor reflector as a
separate process. This command is not intended to be run directly from the
CLI, but instead to be forked and exec'd from tests exercising descriptor
queues across process boundaries.

The command expects the file descriptor number 3 to be open and to be a
connected unix domain stream socket. Every file descriptor received over
this socket is then sent straight back over it.

The command terminates when the connected peer socket closes (disconnects).

An optional TOML configuration file, with its path taken from the
FDFERRY_RELAY_CONFIG environment variable, adjusts the queue capacity, the
truncation policy, and the log level; see [loadConfig] for the details.
*/
package main
