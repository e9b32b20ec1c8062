// Package flickr is the boundary to the provider REST API.
//
// Every call is a GET to a single endpoint with the method selected by a
// query parameter. Responses are decoded once into typed results; a
// stat=fail reply becomes a typed error carrying the provider message.
// Calls made with an access token are signed with pkg/oauth1 and fall back
// to an unsigned request when the signed one fails.
package flickr
