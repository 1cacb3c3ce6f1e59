package profile

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
)

var sink atomic.Uint64

// startWorkers runs n goroutines pinned to their own threads that burn CPU
// until ctx ends.
func startWorkers(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		go func(id int) {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			nameThread(fmt.Sprintf("tp-worker-%d", id))

			x := uint64(id) + 1
			for ctx.Err() == nil {
				for j := 0; j < 1<<16; j++ {
					x ^= x << 13
					x ^= x >> 7
					x ^= x << 17
				}
			}
			sink.Add(x)
		}(i)
	}
}
