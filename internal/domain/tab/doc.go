/*
Package tab holds a session's render targets.

A Tab wraps one engine target with the state the client sees (title, URL,
loading) and a lifecycle:

	Creating -> Ready <-> Loading -> Ready -> Closing -> Closed

Engine work for a tab goes through Submit and runs in order on the tab's own
goroutine, so navigation on one tab never waits on another. Close cancels
queued and in-flight work before releasing the engine target.

The Registry keeps live tabs keyed by id, enforces the per-session cap,
tracks the active tab and never accepts an id it has already retired.
*/
package tab
