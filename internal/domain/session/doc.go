// Package session runs one remote browsing session per control connection.
//
// A Session owns an isolated browsing context, a tab registry, a frame
// relay and the file transfer bridge. Inbound commands and engine events are
// handled on a single loop goroutine:
//
//   - Commands are processed strictly in arrival order.
//   - Engine-bound work runs on the target tab's worker, so slow navigation
//     on one tab does not hold up input to another.
//   - Workers and engine callbacks never write to the client directly; they
//     queue callbacks for the loop, which keeps events about one tab in the
//     order their commands arrived.
//
// Teardown stops the relay, closes every tab, drops pending file requests,
// removes the session upload directory and releases the admission ticket
// before Close returns.
//
// Example Usage:
//
//	manager := session.NewManager(deps, session.DefaultOptions())
//	s, err := manager.Open(ctx, requestedID, conn, ticket)
//	for msg := range inbound {
//		s.Deliver(ctx, msg)
//	}
//	s.Close()
package session
