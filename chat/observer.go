package chat

// Observer is notified after core state changes. The outer adapter layer
// subscribes through Registry.Subscribe, the core never depends on an event
// dispatch framework. Callbacks are invoked synchronously after the mutation
// completes and outside of any instance lock, implementations must not call
// back into the originating operation.
type Observer interface {
	OnChatterJoined(chatter, channel string)
	OnChatterLeft(chatter, channel string)
	OnMessageBroadcast(channel, sender, text string)
}
