package buildinfo

// Build metadata injected via -ldflags at release time.
var (
	// Commit is the VCS revision the binary was built from.
	Commit = "unknown"
	// Date is the build timestamp.
	Date = "unknown"
	// Version is the semantic release version.
	Version = "dev"
)
