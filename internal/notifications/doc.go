// Package notifications delivers pipeline run events via ntfy.
//
// The default implementation publishes to the topic URL configured in
// config.toml and degrades to a no-op when notifications are disabled. Run
// completion and run failure are the only events; each can be switched off
// independently.
package notifications
