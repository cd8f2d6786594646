package version

import (
	"runtime"
	"runtime/debug"
	"strconv"
)

// Service is the name reported by the version endpoint and user agent
const Service = "medreport"

// Set at build time with -ldflags "-X medreport/version.BuildVersion=...".
// Empty values fall back to the VCS stamp from debug.ReadBuildInfo.
var (
	BuildVersion = "dev"
	GitSHA       = ""
	BuildTime    = ""
)

type Info struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	GitSHA      string `json:"git_sha,omitempty"`
	BuildTime   string `json:"build_time,omitempty"`
	VCSModified *bool  `json:"vcs_modified,omitempty"`
	GoVersion   string `json:"go_version"`
	GOOS        string `json:"go_os"`
	GOARCH      string `json:"go_arch"`
}

func Get() Info {
	info := Info{
		Service:   Service,
		Version:   BuildVersion,
		GitSHA:    GitSHA,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		GOOS:      runtime.GOOS,
		GOARCH:    runtime.GOARCH,
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitSHA == "" {
				info.GitSHA = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			if b, err := strconv.ParseBool(s.Value); err == nil && info.VCSModified == nil {
				info.VCSModified = &b
			}
		}
	}
	return info
}

// UserAgent identifies outbound calls to model backends
func UserAgent() string {
	ua := Service + "/" + BuildVersion
	if len(GitSHA) >= 7 {
		ua += "+" + GitSHA[:7]
	}
	return ua
}
