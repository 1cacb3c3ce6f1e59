//go:build !linux && !(darwin && cgo)

package thread

const suspendSupported = false

// unsupportedKernel backs platforms without thread introspection. Every query
// fails, so accessors return their defaults and enumeration is empty.
type unsupportedKernel struct{}

func newKernel() kernel {
	return unsupportedKernel{}
}

func (unsupportedKernel) self() (threadRef, error) { return threadRef{}, errUnsupported }

func (unsupportedKernel) list() ([]threadRef, func(), error) { return nil, nil, errUnsupported }

func (unsupportedKernel) release(threadRef) error { return nil }

func (unsupportedKernel) basicInfo(threadRef) (basicInfo, error) {
	return basicInfo{}, errUnsupported
}

func (unsupportedKernel) identifierInfo(threadRef) (identifierInfo, error) {
	return identifierInfo{}, errUnsupported
}

func (unsupportedKernel) queueLabelAddr(uintptr) uintptr { return 0 }

func (unsupportedKernel) resolve(threadRef) (runtimeHandle, error) { return 0, errUnsupported }

func (unsupportedKernel) name(runtimeHandle, threadRef) (string, error) {
	return "", errUnsupported
}

func (unsupportedKernel) priority(runtimeHandle, threadRef) (int, error) {
	return 0, errUnsupported
}

func (unsupportedKernel) qos(runtimeHandle, threadRef) (QoS, error) { return QoS{}, errUnsupported }

func (unsupportedKernel) stackBounds(runtimeHandle, threadRef) (StackBounds, error) {
	return StackBounds{}, errUnsupported
}

func (unsupportedKernel) suspend(threadRef, suspendLimits) error { return errUnsupported }

func (unsupportedKernel) resume(threadRef) error { return errUnsupported }
