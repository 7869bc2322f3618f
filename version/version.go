package version

import "fmt"

// overridden at build time via -ldflags
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	FullVersion = fmt.Sprintf("%s (%s) built at %s", Version, Commit, BuildDate)
)
