// Command server runs the remote browser service.
//
// A single Chrome instance is launched (or reached through
// BROWSER_CONTROL_URL) and shared by every session; each session gets its
// own incognito browsing context, download directory and upload directory.
//
// Configuration comes from the environment (see internal/infrastructure/config);
// flags override a few settings:
//
//	./server -port 8112 -host 0.0.0.0
//	./server -browser ws://127.0.0.1:9222/devtools/browser/<id>
//	./server -dev
//
// SIGINT and SIGTERM trigger a graceful shutdown: the HTTP server stops,
// every session is torn down and the browser is closed.
package main
