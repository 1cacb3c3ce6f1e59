//go:build cgo

package runtime

const cgoEnabled = true
