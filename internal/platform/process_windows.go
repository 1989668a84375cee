//go:build windows

package platform

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unsafe"
)

// Adapted from the prior implementation's pkg/commands/os_windows.go, which walks a
// CreateToolhelp32Snapshot process list to find child pids; here the same
// snapshot is used to answer "does a process with this pid exist" and to
// read back its image name for stale-pidfile detection.
const (
	maxPath             = 260
	th32csSnapProcess   = 0x00000002
	processQueryLimited = 0x1000
)

type processEntry32 struct {
	dwSize              uint32
	cntUsage            uint32
	th32ProcessID       uint32
	th32DefaultHeapID   uintptr
	th32ModuleID        uint32
	cntThreads          uint32
	th32ParentProcessID uint32
	pcPriClassBase      int32
	dwFlags             uint32
	szExeFile           [maxPath]uint16
}

var (
	modkernel32                  = syscall.NewLazyDLL("kernel32.dll")
	procCreateToolhelp32Snapshot = modkernel32.NewProc("CreateToolhelp32Snapshot")
	procProcess32First           = modkernel32.NewProc("Process32FirstW")
	procProcess32Next            = modkernel32.NewProc("Process32NextW")
	procCloseHandle              = modkernel32.NewProc("CloseHandle")
)

func snapshotProcesses() (map[uint32]string, error) {
	snap, _, _ := procCreateToolhelp32Snapshot.Call(uintptr(th32csSnapProcess), 0)
	if snap == 0 {
		return nil, fmt.Errorf("CreateToolhelp32Snapshot failed")
	}
	defer procCloseHandle.Call(snap)

	var entry processEntry32
	entry.dwSize = uint32(unsafe.Sizeof(entry))

	procs := map[uint32]string{}
	ret, _, _ := procProcess32First.Call(snap, uintptr(unsafe.Pointer(&entry)))
	if ret == 0 {
		return procs, nil
	}
	for {
		name := syscall.UTF16ToString(entry.szExeFile[:])
		procs[entry.th32ProcessID] = name
		ret, _, _ = procProcess32Next.Call(snap, uintptr(unsafe.Pointer(&entry)))
		if ret == 0 {
			break
		}
	}
	return procs, nil
}

// IsProcessAlive reports whether pid appears in the current process
// snapshot.
func IsProcessAlive(pid int) bool {
	procs, err := snapshotProcesses()
	if err != nil {
		return false
	}
	_, ok := procs[uint32(pid)]
	return ok
}

// CommandNameForPid returns the image name backing pid, if it is running.
func CommandNameForPid(pid int) (string, error) {
	procs, err := snapshotProcesses()
	if err != nil {
		return "", err
	}
	name, ok := procs[uint32(pid)]
	if !ok {
		return "", fmt.Errorf("no such process %d", pid)
	}
	return name, nil
}

// TerminateProcess ends pid. Windows has no SIGTERM equivalent for
// arbitrary processes, so "graceful" issues a WM_CLOSE-style request via
// taskkill without /F, and "force" uses taskkill /F, matching how the
// prior implementation shells out to native tools rather than hand-rolling Win32 signal
// emulation.
func TerminateProcess(pid int, force bool) error {
	args := []string{"/PID", strconv.Itoa(pid)}
	if force {
		args = append(args, "/F")
	}
	return exec.Command("taskkill", args...).Run()
}

// FindProcessByPort shells out to netstat, parsing the PID column for a
// listening socket on the given port.
func FindProcessByPort(port int) (int, error) {
	out, err := exec.Command("netstat", "-ano", "-p", "TCP").Output()
	if err != nil {
		return 0, err
	}
	needle := fmt.Sprintf(":%d ", port)
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, needle) || !strings.Contains(line, "LISTENING") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		pid, err := strconv.Atoi(fields[len(fields)-1])
		if err == nil {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("no process found listening on port %d", port)
}

// GracefulTerminationWait is longer on Windows, where some engines are slow
// to release file handles on their data directory .
const GracefulTerminationWait = 5 * time.Second
