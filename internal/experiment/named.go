package experiment

import (
	"fmt"
	"path/filepath"
)

// Registrar accepts named configurations.
type Registrar interface {
	Register(named Named) error
}

// Initialise registers every built-in named configuration with r.
func Initialise(r Registrar) error {
	for _, named := range BuiltinNamed() {
		if err := r.Register(named); err != nil {
			return fmt.Errorf("register %s: %w", named.Name, err)
		}
	}
	return nil
}

// BuiltinNamed returns fresh copies of the built-in named configurations in
// registration order.
func BuiltinNamed() []Named {
	return []Named{
		{
			Name: "hdrnet",
			Doc:  "HDRNet baseline",
			Overrides: Overrides{
				"exp_name": "hdrnet",
				"model":    "hdrnet",
			},
		},
		{
			Name: "guided_filter",
			Doc:  "guided filter baseline",
			Overrides: Overrides{
				"exp_name": "guided-filter",
				"model":    "guided-filter",
			},
		},
		{
			Name: "guided_filter_l1",
			Doc:  "guided filter, L1 image loss",
			Overrides: Overrides{
				"exp_name": "guided-filter-l1",
				"model":    "guided-filter",
			},
		},
		{
			Name: "guided_filter_l1_tanh",
			Doc:  "guided filter, L1 image loss, tanh output",
			Overrides: Overrides{
				"exp_name": "guided-filter-l1-tanh",
				"model":    "guided-filter",
			},
		},
		{
			Name: "guided_filter_l1_percep_adv",
			Doc:  "guided filter with perceptual and adversarial losses, LPIPS on a second GPU",
			Overrides: Overrides{
				"exp_name":           "guided-filter-l1-percep-adv",
				"model":              "guided-filter",
				"num_epochs":         512 - 1,
				"batch_size":         3,
				"log_interval":       30,
				"lpips_device":       "cuda:1",
				"lambda_adversarial": 0.6,
				"lambda_perception":  1.2,
				"lambda_image":       1,
			},
		},
		{
			Name: "guided_filter_l1_tanh_deeper",
			Doc:  "deeper context aggregation network",
			Overrides: Overrides{
				"exp_name":   "guided-filter-l1-tanh-deeper",
				"batch_size": 4,
				"CAN_layers": 9,
				"model":      "guided-filter-deeper",
			},
		},
		{
			Name: "guided_filter_l1_tanh_gdrn",
			Doc:  "guided filter with GDRN backbone",
			Overrides: Overrides{
				"exp_name":           "guided-filter-l1-tanh-gdrn",
				"batch_size":         3,
				"model":              "guided-filter-gdrn",
				"pixelshuffle_ratio": 2,
			},
		},
		{
			Name: "guided_filter_l1_tanh_pixelshuffle",
			Doc:  "pixel-shuffled guided filter on three GPUs",
			Overrides: Overrides{
				"exp_name":           "guided-filter-l1-tanh-pixelshuffle",
				"batch_size":         9,
				"CAN_layers":         21,
				"do_augment":         false,
				"model":              "guided-filter-pixelshuffle",
				"pixelshuffle_ratio": 2,
				"dataparallel":       true,
				"device_list":        []int{0, 1, 2},
			},
		},
		{
			Name: "guided_filter_l1_tanh_pixelshuffle_sim",
			Doc:  "pixel-shuffled guided filter finetuned on simulated DIV2K pairs",
			Overrides: Overrides{
				"exp_name":                "guided-filter-l1-tanh-pixelshuffle-sim",
				"batch_size":              9,
				"CAN_layers":              21,
				"do_augment":              true,
				"model":                   "guided-filter-pixelshuffle",
				"pixelshuffle_ratio":      2,
				"dataparallel":            true,
				"device_list":             []int{0, 1, 2},
				"num_epochs":              64 - 1,
				"finetune":                true,
				"val_test_epoch_interval": 1,
				"save_copy_every_epochs":  32,
				"system":                  string(SystemCFI),
				"train_source_dir":        filepath.Join("DIV2K_train", "LQ"),
				"train_target_dir":        filepath.Join("DIV2K_train", "HQ"),
				"val_source_dir":          filepath.Join("DIV2K_val", "LQ"),
				"val_target_dir":          filepath.Join("DIV2K_val", "HQ"),
				"test_source_dir":         nil,
			},
		},
		{
			Name: "guided_filter_l1_tanh_pixelshuffle_augment",
			Doc:  "pixel-shuffled guided filter finetuned with augmentation on two GPUs",
			Overrides: Overrides{
				"exp_name":           "guided-filter-l1-tanh-pixelshuffle-augment",
				"batch_size":         9,
				"CAN_layers":         21,
				"do_augment":         true,
				"finetune":           true,
				"num_epochs":         128 - 1,
				"model":              "guided-filter-pixelshuffle",
				"pixelshuffle_ratio": 2,
				"dataparallel":       true,
				"device_list":        []int{0, 1},
			},
		},
		{
			Name: "guided_filter_l1_tanh_pixelshuffle_inverse",
			Doc:  "inverse mapping: degrade clean images into poled captures",
			Overrides: Overrides{
				"exp_name":           "guided-filter-l1-tanh-pixelshuffle-inverse",
				"batch_size":         6,
				"CAN_layers":         15,
				"do_augment":         true,
				"model":              "guided-filter-pixelshuffle",
				"pixelshuffle_ratio": 2,
				"dataparallel":       true,
				"device_list":        []int{0, 1},
				"num_epochs":         256 - 1,
				"system":             string(SystemCFI),
				"train_source_dir":   filepath.Join("Poled", "HQ"),
				"train_target_dir":   filepath.Join("Poled", "LQ"),
				"val_source_dir":     nil,
				"val_target_dir":     nil,
				"test_source_dir":    filepath.Join("DIV2K_val", "HQ"),
			},
		},
	}
}
