//go:build !cgo

package runtime

const cgoEnabled = false
