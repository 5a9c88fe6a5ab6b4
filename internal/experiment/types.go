package experiment

import (
	"path/filepath"
	"reflect"

	"github.com/samber/lo"
)

// System identifies the machine an experiment runs on.
type System string

const (
	SystemCFI    System = "CFI"
	SystemFPM    System = "FPM"
	SystemJarvis System = "Jarvis"
	SystemVarun  System = "Varun"
)

// Systems lists every legal System value.
var Systems = []System{SystemCFI, SystemFPM, SystemJarvis, SystemVarun}

// Valid reports whether s is one of Systems.
func (s System) Valid() bool {
	return lo.Contains(Systems, s)
}

const (
	InferenceLatest = "latest"
	InferenceBest   = "best"

	GANTypeNS = "NSGAN"
	GANTypeRA = "RAGAN"

	NormaliserBatch    = "batch_norm"
	NormaliserInstance = "instance_norm"
	NormaliserGroup    = "group_norm"
	NormaliserLayer    = "layer_norm"

	SchedulerCosine = "cosine"
	SchedulerStep   = "step"

	DeviceCPU = "cpu"
)

// Keys of the record whose base values are derived from other keys.
const (
	KeyExpName        = "exp_name"
	KeySystem         = "system"
	KeyImageDir       = "image_dir"
	KeyOutputDir      = "output_dir"
	KeyCkptDir        = "ckpt_dir"
	KeyRunDir         = "run_dir"
	KeyTrainSourceDir = "train_source_dir"
	KeyTrainTargetDir = "train_target_dir"
	KeyValSourceDir   = "val_source_dir"
	KeyValTargetDir   = "val_target_dir"
	KeyTestSourceDir  = "test_source_dir"
	KeyNumThreads     = "num_threads"
	KeyNumGroups      = "num_groups"
	KeyDevice         = "device"
	KeyLPIPSDevice    = "lpips_device"
	KeyDeviceList     = "device_list"
)

// Params is a fully resolved experiment record. Empty optional paths mean "none".
type Params struct {
	ExpName string `mapstructure:"exp_name" json:"exp_name" yaml:"exp_name" validate:"required"`
	System  System `mapstructure:"system" json:"system" yaml:"system" validate:"oneof=CFI FPM Jarvis Varun"`

	// Directories
	ImageDir  string `mapstructure:"image_dir" json:"image_dir" yaml:"image_dir" validate:"required"`
	OutputDir string `mapstructure:"output_dir" json:"output_dir" yaml:"output_dir" validate:"required"`
	CkptDir   string `mapstructure:"ckpt_dir" json:"ckpt_dir" yaml:"ckpt_dir" validate:"required"`
	RunDir    string `mapstructure:"run_dir" json:"run_dir" yaml:"run_dir" validate:"required"`

	// Data
	TrainSourceDir  string `mapstructure:"train_source_dir" json:"train_source_dir" yaml:"train_source_dir" validate:"required"`
	TrainTargetDir  string `mapstructure:"train_target_dir" json:"train_target_dir" yaml:"train_target_dir" validate:"required"`
	ValSourceDir    string `mapstructure:"val_source_dir" json:"val_source_dir,omitempty" yaml:"val_source_dir,omitempty" validate:"required_with=ValTargetDir"`
	ValTargetDir    string `mapstructure:"val_target_dir" json:"val_target_dir,omitempty" yaml:"val_target_dir,omitempty" validate:"required_with=ValSourceDir"`
	TestSourceDir   string `mapstructure:"test_source_dir" json:"test_source_dir,omitempty" yaml:"test_source_dir,omitempty"`
	StaticValImage  string `mapstructure:"static_val_image" json:"static_val_image" yaml:"static_val_image" validate:"required"`
	StaticTestImage string `mapstructure:"static_test_image" json:"static_test_image" yaml:"static_test_image" validate:"required"`
	ImageHeight     int    `mapstructure:"image_height" json:"image_height" yaml:"image_height" validate:"gt=0"`
	ImageWidth      int    `mapstructure:"image_width" json:"image_width" yaml:"image_width" validate:"gt=0"`
	BatchSize       int    `mapstructure:"batch_size" json:"batch_size" yaml:"batch_size" validate:"gt=0"`
	NumThreads      int    `mapstructure:"num_threads" json:"num_threads" yaml:"num_threads" validate:"gte=0"`
	DoAugment       bool   `mapstructure:"do_augment" json:"do_augment" yaml:"do_augment"`

	// Schedules
	NumEpochs    int     `mapstructure:"num_epochs" json:"num_epochs" yaml:"num_epochs" validate:"gte=0"`
	LearningRate float64 `mapstructure:"learning_rate" json:"learning_rate" yaml:"learning_rate" validate:"gt=0"`
	Beta1        float64 `mapstructure:"beta_1" json:"beta_1" yaml:"beta_1" validate:"gte=0,lt=1"`
	Beta2        float64 `mapstructure:"beta_2" json:"beta_2" yaml:"beta_2" validate:"gte=0,lt=1"`
	LRScheduler  string  `mapstructure:"lr_scheduler" json:"lr_scheduler" yaml:"lr_scheduler" validate:"oneof=cosine step"`
	T0           int     `mapstructure:"T_0" json:"T_0" yaml:"T_0" validate:"gt=0"`
	TMult        int     `mapstructure:"T_mult" json:"T_mult" yaml:"T_mult" validate:"gte=1"`
	StepSize     int     `mapstructure:"step_size" json:"step_size" yaml:"step_size" validate:"gt=0"`

	// Checkpoints and logging
	SaveFilenameG        string `mapstructure:"save_filename_G" json:"save_filename_G" yaml:"save_filename_G" validate:"required"`
	SaveFilenameD        string `mapstructure:"save_filename_D" json:"save_filename_D" yaml:"save_filename_D" validate:"required"`
	SaveFilenameLatestG  string `mapstructure:"save_filename_latest_G" json:"save_filename_latest_G" yaml:"save_filename_latest_G" validate:"required"`
	SaveFilenameLatestD  string `mapstructure:"save_filename_latest_D" json:"save_filename_latest_D" yaml:"save_filename_latest_D" validate:"required"`
	SaveCopyEveryEpochs  int    `mapstructure:"save_copy_every_epochs" json:"save_copy_every_epochs" yaml:"save_copy_every_epochs" validate:"gt=0"`
	LogInterval          int    `mapstructure:"log_interval" json:"log_interval" yaml:"log_interval" validate:"gt=0"`
	ValTestEpochInterval int    `mapstructure:"val_test_epoch_interval" json:"val_test_epoch_interval" yaml:"val_test_epoch_interval" validate:"gt=0"`

	// Val / test
	SelfEnsemble  bool   `mapstructure:"self_ensemble" json:"self_ensemble" yaml:"self_ensemble"`
	SaveMat       bool   `mapstructure:"save_mat" json:"save_mat" yaml:"save_mat"`
	InferenceMode string `mapstructure:"inference_mode" json:"inference_mode" yaml:"inference_mode" validate:"oneof=latest best"`

	// Model
	Model             string `mapstructure:"model" json:"model" yaml:"model" validate:"required"`
	CANLayers         int    `mapstructure:"CAN_layers" json:"CAN_layers" yaml:"CAN_layers" validate:"gt=0"`
	UseSpectralNorm   bool   `mapstructure:"use_spectral_norm" json:"use_spectral_norm" yaml:"use_spectral_norm"`
	PixelshuffleRatio int    `mapstructure:"pixelshuffle_ratio" json:"pixelshuffle_ratio" yaml:"pixelshuffle_ratio" validate:"gte=1"`
	GANType           string `mapstructure:"gan_type" json:"gan_type" yaml:"gan_type" validate:"oneof=NSGAN RAGAN"`
	UsePatchGAN       bool   `mapstructure:"use_patch_gan" json:"use_patch_gan" yaml:"use_patch_gan"`
	Normaliser        string `mapstructure:"normaliser" json:"normaliser" yaml:"normaliser" validate:"oneof=batch_norm instance_norm group_norm layer_norm"`
	NumGroups         *int   `mapstructure:"num_groups" json:"num_groups,omitempty" yaml:"num_groups,omitempty" validate:"required_if=Normaliser group_norm,omitempty,gt=0"`

	// Loss
	LambdaAdversarial float64 `mapstructure:"lambda_adversarial" json:"lambda_adversarial" yaml:"lambda_adversarial" validate:"gte=0"`
	LambdaPerception  float64 `mapstructure:"lambda_perception" json:"lambda_perception" yaml:"lambda_perception" validate:"gte=0"`
	LambdaImage       float64 `mapstructure:"lambda_image" json:"lambda_image" yaml:"lambda_image" validate:"gte=0"`

	Resume   bool `mapstructure:"resume" json:"resume" yaml:"resume"`
	Finetune bool `mapstructure:"finetune" json:"finetune" yaml:"finetune"`

	// Distribution
	Device       string `mapstructure:"device" json:"device" yaml:"device" validate:"device"`
	LPIPSDevice  string `mapstructure:"lpips_device" json:"lpips_device" yaml:"lpips_device" validate:"device"`
	DataParallel bool   `mapstructure:"dataparallel" json:"dataparallel" yaml:"dataparallel"`
	DeviceList   []int  `mapstructure:"device_list" json:"device_list,omitempty" yaml:"device_list,omitempty" validate:"omitempty,dive,gte=0"`
}

// CheckpointPath is the directory checkpoints of this experiment are written to.
func (p Params) CheckpointPath() string {
	return filepath.Join(p.CkptDir, p.ExpName)
}

// RunPath is the directory training runs of this experiment are logged to.
func (p Params) RunPath() string {
	return filepath.Join(p.RunDir, p.ExpName)
}

// Overrides is a partial record keyed by record key. A key that is present is fixed
// during resolution, including when its value is nil ("none").
type Overrides map[string]any

// Has reports whether key is fixed by o.
func (o Overrides) Has(key string) bool {
	_, ok := o[key]
	return ok
}

// Clone returns a deep copy of o. Slice and map values are copied too.
func (o Overrides) Clone() Overrides {
	out := make(Overrides, len(o))
	for key, value := range o {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		return map[string]any(Overrides(v).Clone())
	case Overrides:
		return v.Clone()
	case []any:
		if v == nil {
			return v
		}
		return lo.Map(v, func(item any, _ int) any { return cloneValue(item) })
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice && !rv.IsNil() {
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		reflect.Copy(out, rv)
		return out.Interface()
	}
	return value
}

// Merge combines overrides left to right; later values win.
func Merge(overrides ...Overrides) Overrides {
	parts := lo.Map(overrides, func(o Overrides, _ int) map[string]any {
		return o
	})
	return lo.Assign(parts...)
}

// Named is a named partial override of the base configuration.
type Named struct {
	Name      string    `json:"name" yaml:"name"`
	Doc       string    `json:"doc,omitempty" yaml:"doc,omitempty"`
	Overrides Overrides `json:"overrides" yaml:"overrides"`
}

// Environment carries the machine-specific inputs of resolution.
type Environment struct {
	Layouts       map[System]Layout
	CUDAAvailable bool
	// Defaults are applied after the base record and before any named configuration.
	Defaults Overrides
}

// DefaultEnvironment returns an environment with the built-in layouts and no CUDA.
func DefaultEnvironment() Environment {
	return Environment{
		Layouts: BuiltinLayouts(),
	}
}
