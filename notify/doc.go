/*
Package notify implements socket readiness notification on top of epoll,
serving as the external collaborator the fdferry adaptor packages are
written against: a [Watch] is both a task reactor with one-shot wake-ups
(waiter.Reactor) and – through [Watch.Source] – a probing readiness source
(ready.Source).

One [Notifier] multiplexes any number of watched sockets through a single
epoll instance and a single dispatch goroutine. Registrations are one-shot
(EPOLLONESHOT): each [Watch.Register] results in exactly one notification
once the registered interest is satisfied, after which the watch stays
disarmed until registered again. [Notifier.Close] deterministically winds
the dispatch goroutine down (it rings an eventfd bell), so tests can assert
goroutine hygiene.
*/
package notify
