package experiment

import (
	"maps"
	"path/filepath"
)

// Layout locates the dataset root and the artifact directories of a machine.
// An empty ArtifactRoot places outputs, checkpoints and runs relative to the
// working directory.
type Layout struct {
	ImageDir     string `yaml:"image_dir" json:"image_dir"`
	ArtifactRoot string `yaml:"artifact_root" json:"artifact_root,omitempty"`
}

// OutputDir is where inference outputs of expName are written.
func (l Layout) OutputDir(expName string) string {
	return filepath.Join(l.ArtifactRoot, "outputs", expName)
}

// CkptDir is the checkpoint root; checkpoints are saved to CkptDir/exp_name.
func (l Layout) CkptDir() string {
	return filepath.Join(l.ArtifactRoot, "ckpts")
}

// RunDir is the run-log root; runs are saved to RunDir/exp_name.
func (l Layout) RunDir() string {
	return filepath.Join(l.ArtifactRoot, "runs")
}

var builtinLayouts = map[System]Layout{
	SystemCFI: {
		ImageDir: "/mnt/ssd/udc",
	},
	SystemFPM: {
		ImageDir:     "/media/salman/udc",
		ArtifactRoot: "/media/salman/udc",
	},
	SystemJarvis: {
		ImageDir:     "/media/data/salman/udc",
		ArtifactRoot: "/media/data/salman/udc",
	},
}

// BuiltinLayouts returns a copy of the layouts known without any configuration.
// Varun has no built-in layout and must be supplied by the tool configuration.
func BuiltinLayouts() map[System]Layout {
	return maps.Clone(builtinLayouts)
}
