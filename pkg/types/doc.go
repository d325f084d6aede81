// Package types defines the Ledger, LinkStore, and EntityStore interfaces,
// the Edge and Entity data types, association declarations, and the standard
// error values for the Tether association engine.
package types
