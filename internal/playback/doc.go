// Package playback drives the hero section's background video.
//
// A Controller decides whether a looping, muted video should be loaded at
// all (network class, data saver, battery), waits for the surface to come
// into view, attempts playback, recovers from browser autoplay policy and
// falls back to a static gradient when playback is not feasible.
//
// The page is reached only through the Media, Environment, Sensor and
// Clock interfaces.
//
// Phases:
//
//	Gated -> Loading -> Playing
//	           |  ^        |
//	           v  |        v (left viewport)
//	    AutoplayBlocked   Gated
//
//	any -> Error (terminal until a new Controller is mounted)
package playback
