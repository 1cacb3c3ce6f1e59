//go:build linux && !cgo

package thread

const suspendSupported = false

func suspendTask(int, int, suspendLimits) error {
	return errUnsupported
}

func resumeTask(int) error {
	return errUnsupported
}
