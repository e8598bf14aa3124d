// Package daemonctl launches and stops a background songify daemon for the
// start and stop commands.
package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"songify/internal/ipc"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

const pollInterval = 200 * time.Millisecond

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	SocketPath string
	ConfigPath string
	LogLevel   string
}

// StartResult reports whether a new process was launched.
type StartResult struct {
	AlreadyRunning bool
	PID            int
}

// StopResult captures daemon termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts a detached `songify run` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	args := []string{"run"}
	if socket := strings.TrimSpace(opts.SocketPath); socket != "" {
		args = append(args, "--socket", socket)
	}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// EnsureStarted launches the daemon unless its socket already answers, then
// waits until IPC is reachable.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, timeout time.Duration) (StartResult, error) {
	if pid, ok := ping(socketPath); ok {
		return StartResult{AlreadyRunning: true, PID: pid}, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pid, ok := ping(socketPath); ok {
			return StartResult{PID: pid}, nil
		}
		time.Sleep(pollInterval)
	}
	return StartResult{}, fmt.Errorf("daemon did not answer on %s within %s", socketPath, timeout)
}

// Stop sends SIGTERM to the daemon and escalates to SIGKILL when it is still
// reachable after grace. The pid comes from IPC status, falling back to pidPath.
func Stop(socketPath, pidPath string, grace time.Duration) (StopResult, error) {
	pid, ok := ping(socketPath)
	if !ok {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid <= 0 {
		var err error
		if pid, err = readPID(pidPath); err != nil {
			return StopResult{}, err
		}
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return StopResult{}, fmt.Errorf("signal daemon %d: %w", pid, err)
	}

	result := StopResult{PID: pid}
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if _, ok := ping(socketPath); !ok {
			return result, nil
		}
		time.Sleep(pollInterval)
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return result, fmt.Errorf("kill daemon %d: %w", pid, err)
	}
	_ = os.Remove(pidPath)
	result.ForcedKill = true
	return result, nil
}

func ping(socketPath string) (int, bool) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		return 0, false
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return 0, true
	}
	return status.PID, true
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s", path)
	}
	return pid, nil
}
