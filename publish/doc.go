// Package publish drives the provider side of a session: it resolves a set of
// streams to topics and publishes one batch event covering every active stream
// on a fixed period.
//
//	sched, err := publish.New(sess, events.ServiceViper, fields,
//		publish.WithPeriod(time.Second))
//	if err != nil {
//		return err
//	}
//	failed, err := sched.Resolve(ctx, identity, "ticker/IBM Equity", "ticker/MSFT Equity")
//	...
//	return sched.Run(ctx)
//
// Topic status events tell the scheduler when subscribers come and go. Feed them
// through Observe, or use the scheduler's OnTopicStatus from an events.Hook.
package publish
