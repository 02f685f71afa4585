/*
Package relay implements a descriptor reflector: a serving loop that sends
every file descriptor it receives straight back to its sender, over the same
connected unix domain socket. Its main use is exercising descriptor queues
end-to-end from tests, with the reflector running either on a separate go
routine inside the test process, or as a separate child process adopting its
queue socket as inherited file descriptor 3 (see the cmd sub package).

A reflector never keeps descriptors: whatever arrives is staged, flushed, and
the local copies closed, so the only lasting descriptor copies are those the
kernel itself holds while a message is in transit.
*/
package relay
