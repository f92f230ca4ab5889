// Package devstate fans agent device-state changes out to live subscribers.
//
// The Broadcaster implements agent.StateNotifier. The registry reports every
// transition to it after releasing its locks, and the Broadcaster hands each
// change to subscribers without blocking:
//
//	b := devstate.NewBroadcaster(logger)
//	registry.SetNotifier(b)
//	ch, subID := b.Subscribe(ctx, "1001") // "" subscribes to every agent
//
// Subscribers that fall behind lose events rather than stall the registry.
package devstate
