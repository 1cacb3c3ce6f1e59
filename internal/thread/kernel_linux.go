//go:build linux

package thread

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/procfs"
	"github.com/tklauser/go-sysconf"
	"golang.org/x/sys/unix"

	"github.com/coral-mesh/threadprobe/internal/safe"
	"github.com/coral-mesh/threadprobe/internal/sys/proc"
)

// Scheduling policies from sched(7).
const (
	schedOther    = 0
	schedFIFO     = 1
	schedRR       = 2
	schedBatch    = 3
	schedIdle     = 5
	schedDeadline = 6
)

// statBufSize fits any task stat line.
const statBufSize = 1024

type linuxKernel struct {
	pid    int
	fs     procfs.FS
	fsErr  error
	clkTck int64
}

func newKernel() kernel {
	k := &linuxKernel{pid: os.Getpid(), clkTck: 100}
	k.fs, k.fsErr = procfs.NewDefaultFS()
	if hz, err := sysconf.Sysconf(sysconf.SC_CLK_TCK); err == nil && hz > 0 {
		k.clkTck = hz
	}
	return k
}

func (k *linuxKernel) self() (threadRef, error) {
	tid := unix.Gettid()
	fd, err := proc.OpenTask(tid)
	if err != nil {
		return threadRef{}, errnoError("open task", err)
	}
	return threadRef{id: NativeID(tid), token: fd}, nil
}

// list pins every task directory with an O_PATH descriptor. Threads that exit
// between the directory read and the open are skipped.
func (k *linuxKernel) list() ([]threadRef, func(), error) {
	if k.fsErr != nil {
		return nil, nil, fmt.Errorf("procfs unavailable: %w", k.fsErr)
	}
	tasks, err := k.fs.AllThreads(k.pid)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	refs := make([]threadRef, 0, len(tasks))
	for _, t := range tasks {
		fd, err := proc.OpenTask(t.PID)
		if err != nil {
			continue
		}
		refs = append(refs, threadRef{id: NativeID(t.PID), token: fd})
	}
	// The task list is plain Go memory; there is no backing array to hand back.
	return refs, func() {}, nil
}

func (k *linuxKernel) release(ref threadRef) error {
	if ref.token < 0 {
		return nil
	}
	if err := unix.Close(ref.token); err != nil {
		return errnoError("close task", err)
	}
	return nil
}

func (k *linuxKernel) taskStat(ref threadRef) (proc.TaskStat, error) {
	var buf [statBufSize]byte
	n, err := proc.ReadTaskFile(ref.token, int(ref.id), "stat", buf[:])
	if err != nil {
		return proc.TaskStat{}, errnoError("read stat", err)
	}
	st, err := proc.ParseTaskStat(buf[:n])
	if err != nil {
		return proc.TaskStat{}, &kernError{op: "parse stat", msg: err.Error()}
	}
	return st, nil
}

func (k *linuxKernel) basicInfo(ref threadRef) (basicInfo, error) {
	st, err := k.taskStat(ref)
	if err != nil {
		return basicInfo{}, err
	}

	info := basicInfo{
		userTime:   safe.TicksToDuration(st.UTime, k.clkTck),
		systemTime: safe.TicksToDuration(st.STime, k.clkTck),
		runState:   runStateFromStat(st.State),
		idle:       st.State == 'I',
	}

	var now unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &now); err == nil {
		alive := time.Duration(now.Nano()) - safe.TicksToDuration(st.StartTime, k.clkTck)
		info.usage = safe.Fraction(info.userTime+info.systemTime, alive)
	}
	return info, nil
}

func runStateFromStat(state byte) RunState {
	switch state {
	case 'R':
		return RunStateRunning
	case 'S', 'I':
		return RunStateWaiting
	case 'D':
		return RunStateUninterruptible
	case 'T', 't':
		return RunStateStopped
	case 'Z', 'X', 'x':
		return RunStateHalted
	default:
		return RunStateUndefined
	}
}

func (k *linuxKernel) identifierInfo(threadRef) (identifierInfo, error) {
	return identifierInfo{}, errUnsupported
}

func (k *linuxKernel) queueLabelAddr(uintptr) uintptr {
	return 0
}

// resolve confirms the thread is still a member of this process. The runtime
// handle is the TID itself.
func (k *linuxKernel) resolve(ref threadRef) (runtimeHandle, error) {
	if k.fsErr != nil {
		return 0, fmt.Errorf("procfs unavailable: %w", k.fsErr)
	}
	tasks, err := k.fs.AllThreads(k.pid)
	if err != nil {
		return 0, fmt.Errorf("failed to list tasks: %w", err)
	}
	for _, t := range tasks {
		if NativeID(t.PID) == ref.id {
			return runtimeHandle(t.PID), nil
		}
	}
	return 0, ErrThreadGone
}

// commBufSize fits TASK_COMM_LEN plus the trailing newline.
const commBufSize = 32

func (k *linuxKernel) name(_ runtimeHandle, ref threadRef) (string, error) {
	var buf [commBufSize]byte
	n, err := proc.ReadTaskFile(ref.token, int(ref.id), "comm", buf[:])
	if err != nil {
		return "", errnoError("read comm", err)
	}
	return proc.ParseComm(buf[:n]), nil
}

// schedAttr addresses the thread by TID, so the pinned task directory is
// checked afterwards: while it is still readable the TID cannot have been
// handed to another thread.
func (k *linuxKernel) schedAttr(rt runtimeHandle, ref threadRef) (*unix.SchedAttr, error) {
	attr, err := unix.SchedGetAttr(int(rt), 0)
	if err != nil {
		return nil, errnoError("sched_getattr", err)
	}
	if _, err := k.taskStat(ref); err != nil {
		return nil, err
	}
	return attr, nil
}

// priority reports the real-time priority for real-time policies and 20-nice
// for the others, so larger always means more favoured.
func (k *linuxKernel) priority(rt runtimeHandle, ref threadRef) (int, error) {
	attr, err := k.schedAttr(rt, ref)
	if err != nil {
		return 0, err
	}
	switch attr.Policy {
	case schedFIFO, schedRR:
		return int(attr.Priority), nil
	default:
		return 20 - int(attr.Nice), nil
	}
}

func (k *linuxKernel) qos(rt runtimeHandle, ref threadRef) (QoS, error) {
	attr, err := k.schedAttr(rt, ref)
	if err != nil {
		return QoS{}, err
	}
	return qosFromSched(attr.Policy, int(attr.Nice)), nil
}

// qosFromSched maps a Linux scheduling policy and nice value onto the QoS
// classes.
func qosFromSched(policy uint32, nice int) QoS {
	relative := 0
	if nice > 0 {
		relative = safe.ClampInt(-nice, -15, 0)
	}

	switch policy {
	case schedFIFO, schedRR, schedDeadline:
		return QoS{Class: QoSUserInteractive}
	case schedBatch:
		return QoS{Class: QoSUtility, RelativePriority: relative}
	case schedIdle:
		return QoS{Class: QoSBackground, RelativePriority: relative}
	case schedOther:
		switch {
		case nice < 0:
			return QoS{Class: QoSUserInitiated}
		case nice == 0:
			return QoS{Class: QoSDefault}
		default:
			return QoS{Class: QoSUtility, RelativePriority: relative}
		}
	default:
		return QoS{}
	}
}

// stackBounds asks the runtime for the calling thread. For other threads it
// finds the mapping that holds the stack pointer the kernel last saved.
func (k *linuxKernel) stackBounds(rt runtimeHandle, ref threadRef) (StackBounds, error) {
	if int(rt) == unix.Gettid() {
		return currentStackBounds()
	}

	var buf [256]byte
	n, err := proc.ReadTaskFile(ref.token, int(ref.id), "syscall", buf[:])
	if err != nil {
		return StackBounds{}, errnoError("read syscall", err)
	}
	sp, ok := proc.ParseSyscallStackPointer(buf[:n])
	if !ok {
		return StackBounds{}, &kernError{op: "read syscall", msg: "no saved stack pointer"}
	}
	return k.mappingAround(sp)
}

func (k *linuxKernel) mappingAround(addr uintptr) (StackBounds, error) {
	if k.fsErr != nil {
		return StackBounds{}, fmt.Errorf("procfs unavailable: %w", k.fsErr)
	}
	self, err := k.fs.Self()
	if err != nil {
		return StackBounds{}, fmt.Errorf("failed to open self: %w", err)
	}
	maps, err := self.ProcMaps()
	if err != nil {
		return StackBounds{}, fmt.Errorf("failed to read maps: %w", err)
	}
	for _, m := range maps {
		if addr >= m.StartAddr && addr < m.EndAddr {
			return StackBounds{High: m.EndAddr, Low: m.StartAddr}, nil
		}
	}
	return StackBounds{}, &kernError{op: "locate stack", msg: fmt.Sprintf("no mapping holds %#x", addr)}
}

func (k *linuxKernel) suspend(ref threadRef, limits suspendLimits) error {
	return suspendTask(k.pid, int(ref.id), limits)
}

func (k *linuxKernel) resume(ref threadRef) error {
	return resumeTask(int(ref.id))
}

// errnoError classifies err: ESRCH and ENOENT mean the thread is gone.
func errnoError(op string, err error) error {
	if errors.Is(err, unix.ESRCH) || errors.Is(err, unix.ENOENT) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, ErrThreadGone)
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return &kernError{op: op, code: int(errno), msg: errno.Error()}
	}
	return fmt.Errorf("%s: %w", op, err)
}
