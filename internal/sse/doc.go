// Package sse turns a broadcast subscription into a server-sent event
// stream. Streams never replay history and end for good on lag; viewers
// reconnect to continue.
package sse
