// Package protocol defines constants shared with the browser client.
package protocol

const (
	// Version indicates an incompatible change to the client/server
	// interaction.  A client that listens with a different number is
	// answered at once and should reload.
	Version = 1
)
