package buildinfo

import (
	"runtime/debug"
	"sync"
)

const revisionLength = 7

var read = sync.OnceValue(func() map[string]string {
	settings := map[string]string{}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			settings[setting.Key] = setting.Value
		}
	}
	return settings
})

// Revision returns the short vcs revision of the running binary, or "dev"
// for binaries built outside a checkout.
func Revision() string {
	rev := read()["vcs.revision"]
	if rev == "" {
		return "dev"
	}
	if len(rev) > revisionLength {
		rev = rev[:revisionLength]
	}
	if read()["vcs.modified"] == "true" {
		rev += "-dirty"
	}
	return rev
}
