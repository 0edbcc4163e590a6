package app

// Build information populated via -ldflags at build time.
var (
	BuildVersion = "0.0.0-dev"
	BuildCommit  = "unknown"
	BuildDate    = "unknown"
)

// UserAgent identifies outbound fetches.
func UserAgent() string {
	return "postforge/" + BuildVersion + " (+https://github.com/hyperifyio/postforge)"
}
