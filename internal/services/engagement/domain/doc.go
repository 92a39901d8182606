// Package domain defines the engagement signal model: participant roles,
// per-signal snapshots, and the fusion rules that derive their colors.
//
// Everything here is pure. Sessions, transports, and classifiers live in
// sibling packages and feed values through Fusion.
package domain
