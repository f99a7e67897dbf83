// Package version carries build metadata set by the linker, e.g.
//
//	go build -ldflags "-X github.com/grovetools/pgpulse/version.Version=v0.4.0"
package version

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	Version   = "dev"
	Commit    = "none"
	Branch    = "unknown"
	BuildDate = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Branch    string `json:"branch"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// GetInfo returns the build metadata of this binary.
func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Branch:    Branch,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders one "name: value" line per field.
func (i Info) String() string {
	var b strings.Builder
	for _, row := range [][2]string{
		{"Version", i.Version},
		{"Commit", i.Commit},
		{"Branch", i.Branch},
		{"Built", i.BuildDate},
		{"Go", i.GoVersion},
		{"Platform", i.Platform},
	} {
		fmt.Fprintf(&b, "%-9s %s\n", row[0]+":", row[1])
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// ApplicationName is reported to PostgreSQL as application_name so monitor
// connections are identifiable in pg_stat_activity. Development builds
// append the short commit when one is known.
func ApplicationName() string {
	name := "pgpulse/" + Version
	if Version == "dev" && Commit != "none" && len(Commit) >= 7 {
		name += "+" + Commit[:7]
	}
	return name
}
