// Package tether holds project-level metadata shared by the CLI and tests.
package tether

// Version is the current Tether release.
const Version = "0.2.0"
