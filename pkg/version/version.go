// Package version records the build identity of the matchkit binary.
// The variables are stamped at link time:
//
//	go build -ldflags "-X github.com/Sumatoshi-tech/matchkit/pkg/version.Version=v1.2.3"
package version

var (
	// Version is the semantic version of the binary.
	Version = "dev"

	// Commit is the Git hash the binary was built from.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)
