// Package proc parses per-task files of the Linux /proc filesystem.
// Parsers work on raw file contents so callers decide how the file is opened.
package proc

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// TaskStat holds the fields of /proc/<pid>/task/<tid>/stat that thread
// introspection needs. Times are in clock ticks.
type TaskStat struct {
	Comm      string
	State     byte
	Flags     uint64
	UTime     uint64
	STime     uint64
	Priority  int64
	Nice      int64
	StartTime uint64 // Ticks since boot.
	Processor int
	Policy    uint32
}

// Indices of stat fields counted from the state field, which is field 3 in
// proc(5).
const (
	statState     = 0
	statFlags     = 6
	statUTime     = 11
	statSTime     = 12
	statPriority  = 15
	statNice      = 16
	statStartTime = 19
	statProcessor = 36
	statPolicy    = 38
)

// ParseTaskStat parses the contents of a task stat file.
func ParseTaskStat(data []byte) (TaskStat, error) {
	// comm may contain spaces and parentheses; it ends at the last ')'.
	open := bytes.IndexByte(data, '(')
	closing := bytes.LastIndexByte(data, ')')
	if open < 0 || closing < open {
		return TaskStat{}, fmt.Errorf("malformed stat: missing comm")
	}

	fields := strings.Fields(string(data[closing+1:]))
	if len(fields) <= statStartTime {
		return TaskStat{}, fmt.Errorf("malformed stat: %d fields", len(fields))
	}

	st := TaskStat{Comm: string(data[open+1 : closing])}
	if len(fields[statState]) != 1 {
		return TaskStat{}, fmt.Errorf("malformed stat: state %q", fields[statState])
	}
	st.State = fields[statState][0]

	var err error
	if st.Flags, err = strconv.ParseUint(fields[statFlags], 10, 64); err != nil {
		return TaskStat{}, fmt.Errorf("malformed stat flags: %w", err)
	}
	if st.UTime, err = strconv.ParseUint(fields[statUTime], 10, 64); err != nil {
		return TaskStat{}, fmt.Errorf("malformed stat utime: %w", err)
	}
	if st.STime, err = strconv.ParseUint(fields[statSTime], 10, 64); err != nil {
		return TaskStat{}, fmt.Errorf("malformed stat stime: %w", err)
	}
	if st.Priority, err = strconv.ParseInt(fields[statPriority], 10, 64); err != nil {
		return TaskStat{}, fmt.Errorf("malformed stat priority: %w", err)
	}
	if st.Nice, err = strconv.ParseInt(fields[statNice], 10, 64); err != nil {
		return TaskStat{}, fmt.Errorf("malformed stat nice: %w", err)
	}
	if st.StartTime, err = strconv.ParseUint(fields[statStartTime], 10, 64); err != nil {
		return TaskStat{}, fmt.Errorf("malformed stat starttime: %w", err)
	}

	// Older kernels stop before these.
	if len(fields) > statProcessor {
		if p, err := strconv.Atoi(fields[statProcessor]); err == nil {
			st.Processor = p
		}
	}
	if len(fields) > statPolicy {
		if p, err := strconv.ParseUint(fields[statPolicy], 10, 32); err == nil {
			st.Policy = uint32(p)
		}
	}

	return st, nil
}

// ParseSyscallStackPointer extracts the user stack pointer from the contents of
// /proc/<pid>/task/<tid>/syscall. The file holds "running" while the task is
// on a CPU, in which case no stack pointer is reported.
func ParseSyscallStackPointer(data []byte) (uintptr, bool) {
	fields := strings.Fields(string(data))
	// "nr a0 a1 a2 a3 a4 a5 sp pc" inside a syscall, "-1 sp pc" when blocked
	// outside one.
	if len(fields) != 9 && len(fields) != 3 {
		return 0, false
	}

	raw := strings.TrimPrefix(fields[len(fields)-2], "0x")
	sp, err := strconv.ParseUint(raw, 16, 64)
	if err != nil || sp == 0 {
		return 0, false
	}
	return uintptr(sp), true
}

// ParseComm returns the thread name held in a comm file, without the trailing
// newline.
func ParseComm(data []byte) string {
	return string(bytes.TrimRight(data, "\n\x00"))
}
