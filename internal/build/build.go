// Package build provides build information that is linked into the application. Other
// packages within this project can use this information in logs etc.
package build

var (
	// Version is the build version of the binary (e.g. v1.0.0).
	Version = "dev"

	// Commit is the git commit hash the binary was built from.
	Commit = "none"

	// Date is the date this binary was built.
	Date = "unknown"

	// ProjectName is the name used for metrics namespaces and tracer names.
	ProjectName = "datavirt"
)
