package sockhub

// BroadcastOptions selects the recipients of a broadcast. No rooms means
// every socket of the namespace.
type BroadcastOptions struct {
	Rooms  []string
	Except []string
}

// Adapter tracks room membership of a namespace and delivers broadcasts.
type Adapter interface {
	// Add adds a socket to a room
	Add(socketID, room string)

	// Remove removes a socket from a room
	Remove(socketID, room string)

	// RemoveAll removes a socket from all rooms
	RemoveAll(socketID string)

	// Sockets returns all socket IDs in a room
	Sockets(room string) []string

	// SocketRooms returns all rooms a socket is in
	SocketRooms(socketID string) []string

	// Broadcast writes an encoded packet to every selected socket. A failed
	// write to one socket does not stop delivery to the others.
	Broadcast(frame []byte, opts BroadcastOptions) error

	// Close cleans up the adapter
	Close() error
}
