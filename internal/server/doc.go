// Package server exposes the heatmap service over HTTP.
//
// Routes:
//
//	GET  /api/auth/login      start the Flickr OAuth handshake
//	GET  /api/auth/callback   finish it and store the access token in the session
//	POST /api/auth/logout     drop the session
//	GET  /api/user            profile for ?username=
//	GET  /api/photos          heatmap for ?username=&year=&mode=&leveling=
//	GET  /api/user/activity   per-month counts for ?userId=&year=
//	POST /api/share           store a snapshot and return a signed share token
//	GET  /api/snapshot        read a snapshot by ?token= or ?username=
//	GET  /ws/heatmap          same as /api/photos, streaming page progress
//
// Errors are JSON objects of the form {"error": kind, "message": text}.
package server
