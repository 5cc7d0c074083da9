// Package version holds build information injected via ldflags.
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// DashboardImage returns the dashboard image tag matching this daemon build.
// The dashboard release is pinned to the daemon version so the control plane
// and UI upgrade together.
func DashboardImage() string {
	return "doseidotio/dashboard:" + Version
}
