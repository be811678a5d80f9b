package versioninfo

// Set at build time with -ldflags "-X github.com/brk3/streakmate/pkg/versioninfo.Version=..."
var (
	Version   = "dev"
	BuildDate = "unknown"
)

type VersionInfo struct {
	Version   string `json:"Version"`
	BuildDate string `json:"BuildDate"`
}
