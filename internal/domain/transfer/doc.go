/*
Package transfer bridges files between the client and a session's render
targets.

Uploads correlates file chooser dialogs with files the client placed in
the session upload directory through the HTTP surface. At most one
request is pending per target; it is resolved by accepting files or by
cancel, and purged when the target closes.

Watcher reports each file that settles in the session download directory
exactly once. Temporary names used by the browser and by Fetcher are
ignored.

Fetcher downloads a URL into the download directory on the client's
behalf, writing under a temporary name and renaming on completion.
*/
package transfer
