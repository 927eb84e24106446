// Package udpchan provides a single-socket, packet-oriented IPv4 UDP
// channel for device-group style peer messaging on unreliable links.
//
// A Channel multiplexes one datagram socket into a buffered send/receive
// API: outgoing payloads are staged between BeginPacket and EndPacket and
// transmitted as one datagram; incoming datagrams are pulled by polling
// ParsePacket and drained with Read/Peek/Available. Duplicate datagrams
// arriving within a short window are silently suppressed to protect the
// caller from retransmission storms.
//
// # Lifecycle
//
//  1. Begin binds the wildcard address on a port (BeginMulticast also
//     joins a group)
//  2. The caller polls ParsePacket from its main loop; a non-zero return
//     means a datagram is buffered and RemoteIP/RemotePort identify the
//     sender
//  3. BeginPacket/Write/EndPacket stage and flush outgoing datagrams,
//     independent of the receive side
//  4. Stop releases the socket; Begin may be called again
//
// The socket is validated lazily: when the descriptor dies underneath the
// channel (common after Wi-Fi reconnect cycles), the next operation
// recreates it and replays the bind and multicast membership.
//
// # Thread Safety
//
// A Channel is single-threaded by design. All operations are synchronous
// and non-blocking; nothing here may be called concurrently from multiple
// goroutines without external synchronization.
package udpchan
