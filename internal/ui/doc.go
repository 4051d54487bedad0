// Package ui implements an interactive chat terminal interface using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [ChatView] : Compose messages and watch the assistant's answer as it streams
//  2. [HistoryView] : Browse saved conversations and resume one
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Controller updates arrive on the chat bus and are queued by a feed, so publishing never waits on rendering.
//
// Contextual help is displayed via charmbracelet/bubbles/help.
package ui
