/*
Package stream delivers one completion payload per workflow to at most one live subscriber.

A Channel is a rendezvous with a one-element mailbox in each direction: Emit before
Connect buffers the payload, Connect before Emit registers a waiter, and whichever comes
second resolves against the first. A second Connect preempts the current waiter.

A Hub keys channels by workflow id, creates them on first use, and forgets them once
they hold neither a payload nor a waiter. Transports drive a Subscription through Pump
with an EventWriter (SSE lives here; WebSocket lives in the HTTP adapter).
*/
package stream
