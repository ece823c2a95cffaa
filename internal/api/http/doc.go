// Package http is the side-channel HTTP surface next to the control channel.
//
// Every /api route requires the shared API key and a sessionId query
// parameter. File names from the client are reduced to their base name and
// joined under that session's directory, so no request can reach another
// session's files or anything outside the transfer roots.
//
//	GET    /api/downloads        list the session's downloads
//	GET    /api/downloads/:name  fetch one download as an attachment
//	DELETE /api/downloads/:name  delete one download
//	DELETE /api/downloads        delete every download
//	GET    /api/archive          zip of all downloads
//	POST   /api/upload           multipart "files" into the upload area
//	GET    /health               liveness and session counts
package http
