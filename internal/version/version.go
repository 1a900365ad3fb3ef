// ABOUTME: Build identification for Syncroom binaries
// ABOUTME: Reported in client/hello device info and server logs
package version

// Version may be overridden at build time with -ldflags "-X".
var Version = "0.1.0"

const (
	Product      = "Syncroom"
	Manufacturer = "Syncroom"
)
