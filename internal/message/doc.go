// Package message defines the values exchanged between tailing clients,
// the relay server and browser viewers: the application identity a log
// stream is published under, log records, control signals and the
// envelope that carries them.
//
// Envelopes have two wire forms with identical meaning. The JSON form is
// used for control traffic and for viewers; the binary form (CBOR arrays
// with integer-nanosecond timestamps) is used for the high frequency data
// path from client to server.
package message
