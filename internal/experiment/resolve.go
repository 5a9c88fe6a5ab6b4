package experiment

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

const (
	defaultDevice    = "cuda:0"
	defaultNumGroups = 8
)

// nullableKeys may be fixed to none. Every other key needs a value.
var nullableKeys = []string{
	KeyValSourceDir, KeyValTargetDir, KeyTestSourceDir, KeyNumGroups, KeyDeviceList,
}

// fieldTypes maps each record key to the type of its Params field.
var fieldTypes = paramFieldTypes()

func paramFieldTypes() map[string]reflect.Type {
	t := reflect.TypeOf(Params{})
	types := make(map[string]reflect.Type, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name != "" && name != "-" {
			types[name] = field.Type
		}
	}
	return types
}

// baseParams returns the base record without the fields derived from other keys.
func baseParams() Params {
	return Params{
		ExpName: "ours",
		System:  SystemCFI,

		StaticValImage:  "1.png",
		StaticTestImage: "1.png",
		ImageHeight:     1024,
		ImageWidth:      2048,
		BatchSize:       8,
		DoAugment:       true,

		NumEpochs:    512 - 1,
		LearningRate: 3e-4,
		Beta1:        0.9,
		Beta2:        0.999,
		LRScheduler:  SchedulerCosine,
		T0:           1,
		TMult:        2,
		StepSize:     2,

		SaveFilenameG:        "model.pth",
		SaveFilenameD:        "D.pth",
		SaveFilenameLatestG:  "model_latest.pth",
		SaveFilenameLatestD:  "D_latest.pth",
		SaveCopyEveryEpochs:  128,
		LogInterval:          20,
		ValTestEpochInterval: 5,

		InferenceMode: InferenceLatest,

		Model:             "guided-filter",
		CANLayers:         5,
		PixelshuffleRatio: 1,
		GANType:           GANTypeNS,
		Normaliser:        NormaliserGroup,

		LambdaImage: 1,

		Resume: true,
	}
}

// Base resolves the base configuration with no named configuration applied.
func Base(env Environment) (Params, error) {
	return Resolve(env)
}

// Resolve applies env.Defaults and then overrides, in order, to the base record.
// Keys present in any override are fixed; all other keys take their base value,
// computed from the fixed keys where the base value depends on them.
func Resolve(env Environment, overrides ...Overrides) (Params, error) {
	fixed := Merge(append([]Overrides{env.Defaults}, overrides...)...)

	params := baseParams()
	if err := decodeOverrides(fixed, &params); err != nil {
		return Params{}, err
	}

	if err := deriveDirectories(env, fixed, &params); err != nil {
		return Params{}, err
	}

	if !fixed.Has(KeyNumThreads) {
		params.NumThreads = params.BatchSize
	}
	if !fixed.Has(KeyNumGroups) && params.Normaliser == NormaliserGroup {
		groups := defaultNumGroups
		params.NumGroups = &groups
	}

	if !fixed.Has(KeyDevice) {
		params.Device = defaultDevice
	}
	if !fixed.Has(KeyLPIPSDevice) {
		params.LPIPSDevice = defaultDevice
	}
	params.Device = selectDevice(params.Device, env.CUDAAvailable)
	params.LPIPSDevice = selectDevice(params.LPIPSDevice, env.CUDAAvailable)

	if err := Validate(params); err != nil {
		return Params{}, err
	}
	return params, nil
}

func deriveDirectories(env Environment, fixed Overrides, params *Params) error {
	needsLayout := !fixed.Has(KeyImageDir) || !fixed.Has(KeyOutputDir) ||
		!fixed.Has(KeyCkptDir) || !fixed.Has(KeyRunDir)

	var layout Layout
	if needsLayout {
		var ok bool
		layout, ok = env.Layouts[params.System]
		if !ok {
			if !params.System.Valid() {
				return fmt.Errorf("%w: value of `system` must be one of %v, but the current value is %s",
					ErrInvalidParams, Systems, params.System)
			}
			return fmt.Errorf("%w %s", ErrNoLayout, params.System)
		}
	}

	if !fixed.Has(KeyImageDir) {
		params.ImageDir = layout.ImageDir
	}
	if !fixed.Has(KeyOutputDir) {
		params.OutputDir = layout.OutputDir(params.ExpName)
	}
	if !fixed.Has(KeyCkptDir) {
		params.CkptDir = layout.CkptDir()
	}
	if !fixed.Has(KeyRunDir) {
		params.RunDir = layout.RunDir()
	}

	if !fixed.Has(KeyTrainSourceDir) {
		params.TrainSourceDir = filepath.Join("Poled", "LQ")
	}
	if !fixed.Has(KeyTrainTargetDir) {
		params.TrainTargetDir = filepath.Join("Poled", "HQ")
	}
	if !fixed.Has(KeyTestSourceDir) {
		params.TestSourceDir = filepath.Join("Poled_val", "LQ")
	}

	params.TrainSourceDir = dataDir(params.ImageDir, params.TrainSourceDir)
	params.TrainTargetDir = dataDir(params.ImageDir, params.TrainTargetDir)
	params.ValSourceDir = dataDir(params.ImageDir, params.ValSourceDir)
	params.ValTargetDir = dataDir(params.ImageDir, params.ValTargetDir)
	params.TestSourceDir = dataDir(params.ImageDir, params.TestSourceDir)
	return nil
}

// dataDir places a relative dataset directory under imageDir. Empty means none.
func dataDir(imageDir, dir string) string {
	if dir == "" || filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(imageDir, dir)
}

// selectDevice falls back to the CPU for CUDA devices when CUDA is unavailable.
func selectDevice(device string, cudaAvailable bool) string {
	if !cudaAvailable && strings.HasPrefix(device, "cuda") {
		return DeviceCPU
	}
	return device
}

func decodeOverrides(fixed Overrides, params *Params) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           params,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(wholeNumberHook),
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(fixed)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOverrides, err)
	}

	keys := lo.Keys(map[string]any(fixed))
	slices.Sort(keys)
	for _, key := range keys {
		if fixed[key] == nil && !slices.Contains(nullableKeys, key) {
			return fmt.Errorf("%w: value of `%s` cannot be none", ErrInvalidOverrides, key)
		}
	}
	return nil
}

// wholeNumberHook rejects fractional numbers decoded into integer fields.
func wholeNumberHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}

	var value float64
	switch v := data.(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return data, nil
		}
		f, err := v.Float64()
		if err != nil {
			return data, nil
		}
		value = f
	default:
		return data, nil
	}

	if value != math.Trunc(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("%v is not a whole number", data)
	}
	return data, nil
}

// ParseUpdates converts raw key=value command-line updates into overrides.
// Values of string keys are taken verbatim; other values are parsed as YAML
// scalars or flow sequences. "none" means no value.
func ParseUpdates(raw map[string]string) (Overrides, error) {
	updates := make(Overrides, len(raw))
	for key, text := range raw {
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("%w: empty key", ErrInvalidOverrides)
		}
		value, err := parseValue(key, text)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidOverrides, key, err)
		}
		updates[key] = value
	}
	return updates, nil
}

func parseValue(key, text string) (any, error) {
	text = strings.TrimSpace(text)
	if strings.EqualFold(text, "none") {
		return nil, nil
	}
	if t, ok := fieldTypes[key]; ok && t.Kind() == reflect.String {
		return text, nil
	}
	var value any
	if err := yaml.Unmarshal([]byte(text), &value); err != nil {
		return nil, err
	}
	return value, nil
}
