// Package version tells which build of recall is running.
package version

import "runtime/debug"

// Version can be set at build time with something like:
// go build -ldflags "-X github.com/vsariola/recall/version.Version=$(git describe --dirty)"
var Version string

// Hash is the short VCS revision of the build, with "-dirty" appended for
// builds of a modified tree, or empty if the build has no VCS info.
var Hash = func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	return revision(info.Settings)
}()

// VersionOrHash is Version if set, the module version for builds installed
// with go install, and Hash otherwise.
var VersionOrHash = func() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Hash
}()

func revision(settings []debug.BuildSetting) string {
	var rev string
	var modified bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if rev != "" && modified {
		rev += "-dirty"
	}
	return rev
}
