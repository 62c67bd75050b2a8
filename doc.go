// Package blip is the client session layer of a market-data distribution
// service.
//
// A Session connects to one server of an endpoint set, authorizes identities
// through a token exchange (see package auth), subscribes to topics,
// resolves and publishes on topics it provides, and produces a stream of
// typed events (see package events). Events are consumed by pulling them:
//
//	sess, err := blip.New(blip.WithAddresses("localhost:8194"))
//	if err != nil {
//		return err
//	}
//	if err := sess.Start(ctx); err != nil {
//		return err
//	}
//	defer sess.Stop(context.Background())
//
//	for {
//		ev, err := sess.NextEvent(ctx)
//		if err != nil {
//			return err
//		}
//		...
//	}
//
// or by installing a Handler with WithHandler, which receives every event on
// a goroutine owned by the session. Package dispatch classifies events for
// either style, and package publish drives periodic publishing.
package blip
