/*
Package rotorhttp implements the server-side half of HTTP/1.x: a
per-connection request parser and body-delivery state machine that drives
a pluggable application Handler.

Unlike net/http, the state machine here is not bound to a particular
transport. It owns nothing but two byte queues (InputQueue, OutputQueue)
and a cursor describing where it is in the request/response cycle; given
an Expectation and a deadline back from the Parser, any transport that can
satisfy "N bytes" or "find this delimiter" can drive it. Server and
workerPool are the concrete transport this package ships: a goroutine per
connection, reading and writing a real net.Conn.

rotorhttp is built around a few small pieces:

    * Parser drives one connection through Idle, ReadHeaders, ReadingBody,
      Processing and DoneResponse, one event at a time.
    * Handler and HandlerFactory are the application's side of the
      contract: headers in, chunks or a full body out, a Response to
      write into.
    * DeliveryMode lets a handler choose between buffering the whole body
      (Buffered) or streaming it in pieces (Progressive).
    * Context carries the size limits, timeouts and error-page renderer
      shared across every connection.

The parser enforces keep-alive safety on every error path: a connection is
only recycled for a later request if the failed request's method was
decidable, its body was empty, and the error response was written, which
closes off the usual request-smuggling amplification through a reused
socket.
*/
package rotorhttp
