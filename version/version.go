package version

var (
	// semver and revision are set with -ldflags "-X" when a release is tagged
	semver   = "0.1.0"
	revision = "unknown"
)

// Get return the version.
func Get() string {
	return semver
}

func Commit() string {
	return revision
}
