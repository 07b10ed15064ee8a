package install

import (
	"github.com/distantorigin/butter-launcher/internal/jre"
	"github.com/distantorigin/butter-launcher/internal/manifest"
	"github.com/distantorigin/butter-launcher/internal/paths"
	"github.com/distantorigin/butter-launcher/internal/version"
)

// Status describes what is present on disk for one build
type Status struct {
	InstallDir string `json:"install_dir"`
	ClientPath string `json:"client_path"`
	ServerPath string `json:"server_path"`
	JavaPath   string `json:"java_path,omitempty"`

	Client bool `json:"client"`
	Server bool `json:"server"`
	JRE    bool `json:"jre"`

	Manifest *manifest.Installed `json:"manifest,omitempty"`
}

// Complete reports whether the build can be launched as-is
func (s Status) Complete() bool {
	return s.Client && s.Server && s.JRE
}

// OnBuild reports whether the directory's manifest records v
func (s Status) OnBuild(v version.GameVersion) bool {
	return s.Manifest.Matches(v)
}

// Check inspects the installation of v under baseDir, looking in the latest
// alias first when it holds that build.
func Check(baseDir string, v version.GameVersion) Status {
	return inspect(baseDir, paths.ResolveExistingInstallDir(baseDir, v))
}

func inspect(baseDir, installDir string) Status {
	st := Status{
		InstallDir: installDir,
		ClientPath: paths.ClientPath(installDir),
		ServerPath: paths.ServerPath(installDir),
	}
	st.Client = paths.Exists(st.ClientPath)
	st.Server = paths.Exists(st.ServerPath)
	st.JavaPath, st.JRE = jre.Find(baseDir)
	if m, ok := manifest.Read(installDir); ok {
		st.Manifest = m
	}
	return st
}
