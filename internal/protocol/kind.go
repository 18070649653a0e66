package protocol

// Kind identifies the category of a message envelope. The set is
// closed: decoding rejects any string outside this list, but the
// reserved-but-unimplemented kinds below must still decode cleanly so
// a future handler can be registered for them without a wire change.
type Kind string

const (
	JoinRequest  Kind = "JOIN_REQUEST"
	PeerList     Kind = "PEER_LIST"
	SensorUpdate Kind = "SENSOR_UPDATE"

	// Reserved but unimplemented by the core. Receivers must still
	// accept them during decoding; dispatch with no registered
	// handler falls back to a log-and-ignore, same as any other
	// unknown-to-this-node kind.
	Ping              Kind = "PING"
	Pong              Kind = "PONG"
	GossipState       Kind = "GOSSIP_STATE"
	FullSyncRequest   Kind = "FULL_SYNC_REQUEST"
	FullSyncResponse  Kind = "FULL_SYNC_RESPONSE"
	ErrorKind         Kind = "ERROR"
	Ack               Kind = "ACK"
)

var knownKinds = map[Kind]struct{}{
	JoinRequest:      {},
	PeerList:         {},
	SensorUpdate:     {},
	Ping:             {},
	Pong:             {},
	GossipState:      {},
	FullSyncRequest:  {},
	FullSyncResponse: {},
	ErrorKind:        {},
	Ack:              {},
}

// Valid reports whether k is part of the closed kind enumeration.
func (k Kind) Valid() bool {
	_, ok := knownKinds[k]
	return ok
}
