// Package experiment declares the training configuration of the under-display-camera
// restoration pipeline: the base record, the per-machine directory layouts, the built-in
// named configurations and the rules that resolve overrides into a validated record.
package experiment
