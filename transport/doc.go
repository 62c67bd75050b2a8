// Package transport carries operations from a session to a server and events
// from the server back to the session. It hides how the bytes move: the
// Local broker connects both ends in-process, the NATS broker routes them
// through a NATS server.
//
// Design decisions:
//   - Context-first: dialing, sending and delivering accept context.Context
//   - Ordered: operations from one connection reach the handler in send order,
//     events for one peer reach the connection in delivery order
//   - Never closed: the inbound event channel is never closed; Done signals
//     the end of the connection and readers drain what is left
//   - Slow consumers: a delivery that cannot be queued within the configured
//     timeout fails with ErrSlowConsumer instead of blocking the server
//
// Interface hierarchy:
//   - Broker: dials endpoints and serves them
//     ├── Conn: the client end of one connection
//     └── Listener: a served endpoint
//   - Handler: the server side, fed with operations per Peer
//
// Example usage:
//
//	broker := transport.Local()
//	lis, err := broker.Serve(ctx, "localhost:8194", handler)
//	if err != nil {
//	    return err
//	}
//	defer lis.Close()
//
//	conn, err := broker.Dial(ctx, "localhost:8194", transport.DialOptions{Name: "app"})
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	for {
//	    select {
//	    case ev := <-conn.Events():
//	        handle(ev)
//	    case <-conn.Done():
//	        return nil
//	    }
//	}
package transport
