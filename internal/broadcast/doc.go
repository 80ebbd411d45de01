// Package broadcast keeps the identity to channel map of the relay server
// and the per-identity fan-out channels.
package broadcast
