// Package ratelimit paces outgoing provider calls and incoming API requests.
//
// TokenBucket wraps golang.org/x/time/rate and is shared by every REST call
// a flickr.Client makes, so a multi-page listing and the twelve concurrent
// monthly queries draw from the same budget. New returns Unlimited when no
// rate is configured.
//
// KeyedLimiter keeps one bucket per key and is used by the web layer to
// throttle requests per client IP.
package ratelimit
