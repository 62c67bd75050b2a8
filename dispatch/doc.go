// Package dispatch drives an events.Hook from a session's event stream.
//
// A Loop classifies every event by type, hands its messages to the hook in
// order, and decides when the stream is over: on a terminal session status,
// or after a configured number of data events. It works in both consumption
// styles of a session:
//
//	loop, _ := dispatch.New(hook)
//	err := loop.Run(ctx, sess) // pull
//
//	blip.WithHandler(blip.HandlerFunc(func(ctx context.Context, ev events.Event, _ *blip.Session) {
//		loop.Handle(ctx, ev) // push
//	}))
//	<-loop.Done()
package dispatch
