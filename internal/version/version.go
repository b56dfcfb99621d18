// Package version provides version information for vaultmend.
package version

// Version is the current version of vaultmend.
// It can be overridden at build time with:
//
//	go build -ldflags "-X github.com/vaultmend/vaultmend/internal/version.Version=x.y.z"
var Version = "0.1.0"

// Name is the application name.
const Name = "vaultmend"
