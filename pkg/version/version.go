package version

// Build holds the build identifier, injected via -ldflags. Default "dev".
var Build = "dev"

// String is the banner printed at startup.
func String() string {
	return "db-monitor " + Build
}
