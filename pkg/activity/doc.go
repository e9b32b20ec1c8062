// Package activity turns a user's photo listing into a per-day heatmap.
//
// The Service resolves an identifier to an account id, pages through the
// photo search one page at a time, and buckets photos by upload or taken
// date. Aggregate produces a sparse, leveled series; FillWindow expands it
// to one entry per calendar day of the requested year. Two leveling
// schemes are available: LinearQuartile (0-4, the default) and
// Logarithmic (0-7).
package activity
