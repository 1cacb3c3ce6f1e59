//go:build !linux && !(darwin && cgo)

package memsafe

import (
	"fmt"
	"runtime"
)

func newProbe(m Mechanism) (Probe, error) {
	return nil, fmt.Errorf("memory probe %q not supported on %s", m, runtime.GOOS)
}
