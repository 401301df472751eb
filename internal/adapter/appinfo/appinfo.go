package appinfo

import (
	"github.com/carlmjohnson/versioninfo"
)

// VersionInfo reports the build version sent during the handshake.
type VersionInfo struct {
	Code int
}

func (v VersionInfo) VersionName() string {
	return versioninfo.Short()
}

func (v VersionInfo) VersionCode() int {
	return v.Code
}
