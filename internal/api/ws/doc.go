// Package ws serves the control channel: one websocket per session.
//
// Admission happens before the upgrade, so a rejected client gets a plain
// HTTP status (401 for a bad credential, 503 at capacity) and no session
// state is ever created for it. After the upgrade the connection is the
// session's Outbound; its reader feeds Session.Deliver until the peer goes
// away or stops answering pings, and then tears the session down.
package ws
