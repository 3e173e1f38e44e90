package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Set at build time, e.g.
// -ldflags "-X github.com/woffyai/woffyd/pkg/version.Version=v1.2.0 -X github.com/woffyai/woffyd/pkg/version.Commit=<sha>"
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
	Dirty   = ""
)

const component = "woffyd"

type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
	Dirty   bool   `json:"dirty,omitempty"`
}

func Current() Info {
	info := Info{
		Version: strings.TrimSpace(Version),
		Commit:  strings.TrimSpace(Commit),
		Date:    strings.TrimSpace(Date),
		Dirty:   strings.EqualFold(strings.TrimSpace(Dirty), "true"),
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fillFromBuild(bi.Settings)
	}
	return info
}

// fillFromBuild uses the VCS stamp when ldflags left a field empty.
func (i *Info) fillFromBuild(settings []debug.BuildSetting) {
	for _, s := range settings {
		v := strings.TrimSpace(s.Value)
		switch s.Key {
		case "vcs.revision":
			if i.Commit == "" {
				i.Commit = v
			}
		case "vcs.time":
			if i.Date == "" {
				i.Date = v
			}
		case "vcs.modified":
			i.Dirty = i.Dirty || strings.EqualFold(v, "true")
		}
	}
}

func (i Info) String() string {
	parts := []string{i.Version}
	if i.Commit != "" {
		short := i.Commit
		if len(short) > 12 {
			short = short[:12]
		}
		parts = append(parts, short)
	}
	if i.Dirty {
		parts = append(parts, "dirty")
	}
	return strings.Join(parts, "+")
}

func String() string {
	return Current().String()
}

// Detailed is the text printed by `woffyd version`.
func Detailed() string {
	v := Current()
	out := fmt.Sprintf("%s %s", component, v.String())
	if v.Date != "" {
		out += "\nBuilt: " + v.Date
	}
	return out
}

// UserAgent identifies outbound upstream calls.
func UserAgent() string {
	return component + "/" + Current().Version
}
