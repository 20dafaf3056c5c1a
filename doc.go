// Package sockhub is a namespaced realtime event broker speaking the
// Socket.IO v4 packet format over an Engine.IO WebSocket transport.
//
// # Quick Start
//
//	broker := sockhub.NewBroker(nil)
//
//	broker.Of("/").On("echoAck", func(e *sockhub.Event) {
//	    e.Ack(e.Args...)
//	})
//
//	http.Handle("/socket.io/", broker)
//	http.ListenAndServe(":3000", nil)
//
// # Namespaces
//
// Each namespace has its own sockets, handlers, rooms and nickname table.
// Namespaces are created on first use by Of, or when a client connects to
// them.
//
//	chat := broker.Of("/chat")
//	chat.OnConnect(func(s *sockhub.Socket) {
//	    s.Emit("welcome", s.ID())
//	})
//
// Handlers registered with Namespace.On apply to every socket; Socket.On
// overrides them for one socket. Unknown events are ignored.
//
// # Ordering
//
// Every namespace owns a dispatch queue. Event handlers, connect and
// disconnect hooks, acknowledgement callbacks and CrossNamespaceSend
// deliveries for a namespace run one at a time, in arrival order. Handlers
// must not block.
//
// When a socket disconnects its pending acknowledgements are dropped and it
// leaves the socket set at once; its nickname is released on the queue ahead
// of any later event.
//
// # Acknowledgements
//
// Reply to a client's request:
//
//	ns.On("echoAck", func(e *sockhub.Event) { e.Ack(e.Args...) })
//
// Ask a client for a reply:
//
//	s.EmitWithAck("question", func(args ...any) {
//	    log.Printf("answer: %v", args)
//	}, "name?")
//
// or wait for it with a deadline using Socket.Request.
//
// # Broadcasting
//
//	ns.Emit("news", "to everyone")
//	s.Broadcast().Emit("news", "to everyone but s")
//	ns.To("room1").Except(s.ID()).Emit("news", "to room1 but s")
//	broker.CrossNamespaceSend("/other", "hello")
//
// # Clustering
//
// With WithBus, broadcasts are also published to the other brokers sharing
// the bus (see packages bus/redisbus and bus/natsbus) and delivered to their
// local sockets.
package sockhub
