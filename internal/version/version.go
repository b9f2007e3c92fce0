// Package version exposes build metadata stamped in at link time.
package version

// Set via -ldflags "-X github.com/agokrani/moltbook-api/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = "unknown"
)

// Info is the version payload returned by the version endpoint.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// Get returns the current build information.
func Get() Info {
	return Info{Version: Version, Commit: Commit}
}
