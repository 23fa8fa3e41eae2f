// Package transport defines the boundary between a peer.Driver's
// outbound message queue and the network. Production code would back
// Sender with a real socket/RPC client; tests and the simulator CLI use
// Loopback to exercise the full protocol in one process.
package transport

import (
	"context"

	"github.com/gdanezis/dlsconsensus-go/message"
)

// Sender delivers a single wire message to a single peer address. It is
// the only thing a peer.Driver needs from the network layer: it neither
// knows nor cares how addr maps to a real connection.
type Sender interface {
	Send(ctx context.Context, addr string, msg message.Wire) error
}
