package experiment

import (
	"strings"

	"github.com/spf13/afero"
)

const nvidiaDriverVersion = "/proc/driver/nvidia/version"

// DetectCUDA reports whether a CUDA device is visible to training processes.
// An explicitly empty or "-1" CUDA_VISIBLE_DEVICES hides every device.
func DetectCUDA(fs afero.Fs, lookupEnv func(string) (string, bool)) bool {
	if visible, ok := lookupEnv("CUDA_VISIBLE_DEVICES"); ok {
		visible = strings.TrimSpace(visible)
		if visible == "" || visible == "-1" {
			return false
		}
	}
	exists, err := afero.Exists(fs, nvidiaDriverVersion)
	return err == nil && exists
}
