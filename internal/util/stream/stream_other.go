//go:build !linux
// +build !linux

package stream

var ReadOptimizations []Optimization
