// Package chat drives streaming conversations with the study assistant.
//
// A [Controller] owns the message list of one chat session. Each call to [Controller.Send]
// starts a turn: the user message is appended, the chat stream is opened and its events are
// interpreted until the stream ends. Assistant tokens are buffered and flushed to the visible
// partial text on a short single-shot timer ([DelayedTask]), so rapid tokens coalesce into
// fewer updates without ever being reordered. When the turn ends, for any reason, the pending
// text is flushed and the accumulated answer is appended as one assistant message.
//
// Starting a new turn cancels the active one and waits for it to finish before the next user
// message is appended. A cancelled turn is not an error.
//
// Observers subscribe to the controller's [events.Bus] and receive [Update] values:
// [Notice], [PartialChanged], [MessageAppended] and [StreamingChanged].
package chat
