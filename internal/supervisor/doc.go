// Package supervisor runs one relay session on the server: it registers the
// peer's identity, republishes inbound frames onto the broadcast channel,
// tells the peer to pause while nobody is watching, and tears the session
// down when the peer stops answering pings.
package supervisor
