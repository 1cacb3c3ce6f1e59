//go:build linux && !cgo

package thread

func currentStackBounds() (StackBounds, error) {
	return StackBounds{}, errUnsupported
}
