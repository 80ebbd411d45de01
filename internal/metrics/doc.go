// Package metrics holds the prometheus collectors shared by the relay
// server and client.
package metrics
