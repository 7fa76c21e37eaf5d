// Package stitch links per-time-step candidate points into storm
// trajectories.
//
// The candidate store accumulates detection output in strict time
// order. The stitcher then makes a single sequential pass over it,
// keeping an arena of open trajectories with explicit OPEN/CLOSED
// state and a consecutive-gap counter, claiming at most one candidate
// per trajectory per step (one-to-one linking, no merges or splits).
package stitch
