package realtime

// ConnState represents the channel connection status.
type ConnState int

const (
	// StateDisconnected means no connection exists and none is being
	// attempted. A token change is what moves the manager out of it.
	StateDisconnected ConnState = iota

	// StateConnecting means a dial episode is in progress.
	StateConnecting

	// StateOpen means frames flow.
	StateOpen

	// StateClosedByPeer means the server or the network dropped an open
	// connection. Local caches are kept; a future token change reconnects.
	StateClosedByPeer

	// StateClosedByClient means Close tore the manager down for good.
	StateClosedByClient
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedByPeer:
		return "closed_by_peer"
	case StateClosedByClient:
		return "closed_by_client"
	default:
		return "unknown"
	}
}
