// Package relay is the client side of a log relay. A Link owns one
// websocket session at a time: a tailer fills a bounded queue, a sender
// drains it through a Gate, and a receiver feeds server control signals
// back into the queue. Sessions are retried forever after a cool-down.
package relay
