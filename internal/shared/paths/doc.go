// Package paths resolves the per-session transfer directories.
//
// Every session owns one download directory and one upload directory:
//
//	<DOWNLOADS_DIR>/<sessionId>/   files saved by the engine or download_url
//	<UPLOADS_DIR>/<sessionId>/     files pushed by the client for file choosers
//
// Session ids are reduced to [A-Za-z0-9-] before they touch the filesystem and
// client supplied filenames are joined basename-only, so neither can escape
// the session directory.
//
// # Usage
//
//	layout := paths.Layout{DownloadsRoot: cfg.Storage.DownloadsDir, UploadsRoot: cfg.Storage.UploadsDir}
//	downloads, uploads, err := layout.Ensure(sessionID)
//	file, err := paths.SafeJoin(uploads, "../../etc/passwd") // <uploads>/passwd
package paths
