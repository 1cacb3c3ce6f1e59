package thread

import (
	"sync"
	"time"
)

type fakeThread struct {
	info      basicInfo
	ident     identifierInfo
	name      string
	priority  int
	qos       QoS
	stack     StackBounds
	gone      bool
	noRuntime bool
}

// fakeKernel records every reference it hands out and every release, so tests
// can check ownership without real threads.
type fakeKernel struct {
	mu sync.Mutex

	selfID  NativeID
	threads map[NativeID]*fakeThread
	order   []NativeID
	listErr error
	labels  map[uintptr]uintptr

	nextToken int
	issued    map[int]NativeID
	released  map[int]int
	listDone  int

	resolveCalls map[NativeID]int
	calls        []string
	suspended    map[NativeID]bool
}

func newFakeKernel(selfID NativeID, ids ...NativeID) *fakeKernel {
	k := &fakeKernel{
		selfID:       selfID,
		threads:      make(map[NativeID]*fakeThread),
		labels:       make(map[uintptr]uintptr),
		nextToken:    100,
		issued:       make(map[int]NativeID),
		released:     make(map[int]int),
		resolveCalls: make(map[NativeID]int),
		suspended:    make(map[NativeID]bool),
	}
	for _, id := range ids {
		k.add(id, &fakeThread{
			info: basicInfo{
				userTime:   time.Duration(id) * time.Millisecond,
				systemTime: time.Millisecond,
				usage:      0.5,
				runState:   RunStateRunning,
			},
			name:     "worker",
			priority: 31,
			qos:      QoS{Class: QoSDefault},
			stack:    StackBounds{High: 0x20000, Low: 0x10000},
		})
	}
	return k
}

func (k *fakeKernel) add(id NativeID, t *fakeThread) {
	if _, ok := k.threads[id]; !ok {
		k.order = append(k.order, id)
	}
	k.threads[id] = t
}

func (k *fakeKernel) issue(id NativeID) threadRef {
	k.nextToken++
	k.issued[k.nextToken] = id
	return threadRef{id: id, token: k.nextToken}
}

func (k *fakeKernel) thread(id NativeID) (*fakeThread, error) {
	t, ok := k.threads[id]
	if !ok || t.gone {
		return nil, ErrThreadGone
	}
	return t, nil
}

func (k *fakeKernel) record(call string) {
	k.calls = append(k.calls, call)
}

// outstanding returns the number of issued references not yet released.
func (k *fakeKernel) outstanding() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	n := 0
	for token := range k.issued {
		if k.released[token] == 0 {
			n++
		}
	}
	return n
}

// maxReleases returns the highest release count of any single reference.
func (k *fakeKernel) maxReleases() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	m := 0
	for _, n := range k.released {
		m = max(m, n)
	}
	return m
}

func (k *fakeKernel) self() (threadRef, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.issue(k.selfID), nil
}

func (k *fakeKernel) list() ([]threadRef, func(), error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.listErr != nil {
		return nil, nil, k.listErr
	}
	refs := make([]threadRef, 0, len(k.order))
	for _, id := range k.order {
		refs = append(refs, k.issue(id))
	}
	return refs, func() {
		k.mu.Lock()
		k.listDone++
		k.mu.Unlock()
	}, nil
}

func (k *fakeKernel) release(ref threadRef) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.released[ref.token]++
	return nil
}

func (k *fakeKernel) basicInfo(ref threadRef) (basicInfo, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, err := k.thread(ref.id)
	if err != nil {
		return basicInfo{}, err
	}
	return t.info, nil
}

func (k *fakeKernel) identifierInfo(ref threadRef) (identifierInfo, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, err := k.thread(ref.id)
	if err != nil {
		return identifierInfo{}, err
	}
	return t.ident, nil
}

func (k *fakeKernel) queueLabelAddr(queue uintptr) uintptr {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.labels[queue]
}

func (k *fakeKernel) resolve(ref threadRef) (runtimeHandle, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.resolveCalls[ref.id]++
	k.record("resolve")
	t, err := k.thread(ref.id)
	if err != nil {
		return 0, err
	}
	if t.noRuntime {
		return 0, &kernError{op: "resolve", msg: "no runtime thread"}
	}
	return runtimeHandle(ref.id), nil
}

func (k *fakeKernel) name(rt runtimeHandle, _ threadRef) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, err := k.thread(NativeID(rt))
	if err != nil {
		return "", err
	}
	return t.name, nil
}

func (k *fakeKernel) priority(rt runtimeHandle, _ threadRef) (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, err := k.thread(NativeID(rt))
	if err != nil {
		return 0, err
	}
	return t.priority, nil
}

func (k *fakeKernel) qos(rt runtimeHandle, _ threadRef) (QoS, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, err := k.thread(NativeID(rt))
	if err != nil {
		return QoS{}, err
	}
	return t.qos, nil
}

func (k *fakeKernel) stackBounds(rt runtimeHandle, _ threadRef) (StackBounds, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t, err := k.thread(NativeID(rt))
	if err != nil {
		return StackBounds{}, err
	}
	return t.stack, nil
}

func (k *fakeKernel) suspend(ref threadRef, _ suspendLimits) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.record("suspend")
	if _, err := k.thread(ref.id); err != nil {
		return err
	}
	k.suspended[ref.id] = true
	return nil
}

func (k *fakeKernel) resume(ref threadRef) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.record("resume")
	if !k.suspended[ref.id] {
		return &kernError{op: "resume", msg: "not suspended"}
	}
	k.suspended[ref.id] = false
	return nil
}
