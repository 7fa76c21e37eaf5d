// Package grid holds the in-memory representation of one model time
// step's gridded meteorological fields.
//
// Responsibilities: grid topology (latitude/longitude axes, flat cell
// indexing), per-variable sample access, the great-circle distance
// metric with periodic longitude handling, and precomputed radius
// neighborhoods for the detector.
//
// A Grid is constructed once per time step, read-only thereafter.
package grid
