package pty

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/creack/pty"
)

const (
	DefaultRows = 50
	DefaultCols = 50
)

var (
	ErrSpawn         = errors.New("spawn failed")
	ErrEmptyCommand  = errors.New("empty command")
	ErrNameDiscovery = errors.New("terminal name not discovered")
)

type SpawnStage string

const (
	StageAllocate SpawnStage = "allocate"
	StageName     SpawnStage = "name"
	StageResize   SpawnStage = "resize"
	StageExec     SpawnStage = "exec"
)

// SpawnError reports which step of starting a terminal process failed.
type SpawnError struct {
	Stage SpawnStage
	Err   error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Stage, e.Err)
}

func (e *SpawnError) Unwrap() []error {
	return []error{ErrSpawn, e.Err}
}

// Process is a running command attached to the slave side of a fresh
// pseudo-terminal. Master is owned by the caller.
type Process struct {
	TTY    string
	PID    int
	Master *os.File
}

// Launcher starts commands on new pseudo-terminals.
type Launcher struct {
	Rows uint16
	Cols uint16
	Dir  string
	Env  []string
}

func NewLauncher(rows, cols uint16) *Launcher {
	if rows == 0 {
		rows = DefaultRows
	}
	if cols == 0 {
		cols = DefaultCols
	}
	return &Launcher{Rows: rows, Cols: cols}
}

// Spawn allocates a pseudo-terminal pair and starts argv as the controlling
// process of its slave side. The child is never waited on through os/exec;
// callers reap it with ReapIfExited.
func (l *Launcher) Spawn(argv []string) (*Process, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, &SpawnError{Stage: StageExec, Err: ErrEmptyCommand}
	}

	master, slave, err := pty.Open()
	if err != nil {
		return nil, &SpawnError{Stage: StageAllocate, Err: err}
	}
	defer slave.Close()

	tty, err := CanonicalName(slave.Name())
	if err != nil {
		_ = master.Close()
		return nil, &SpawnError{Stage: StageName, Err: err}
	}

	if err := SetWindowSize(master, l.Rows, l.Cols); err != nil {
		_ = master.Close()
		return nil, &SpawnError{Stage: StageResize, Err: err}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = l.Dir
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		_ = master.Close()
		return nil, &SpawnError{Stage: StageExec, Err: err}
	}

	pid := cmd.Process.Pid
	// Drop the os.Process handle; exit status is collected with wait4.
	_ = cmd.Process.Release()

	return &Process{TTY: tty, PID: pid, Master: master}, nil
}

// CanonicalName turns a slave device path such as "/dev/pts/3" into the
// terminal id "pts/3".
func CanonicalName(device string) (string, error) {
	name := strings.TrimSpace(device)
	name = strings.TrimPrefix(name, "/dev/")
	if name == "" {
		return "", ErrNameDiscovery
	}
	return name, nil
}

// SetWindowSize applies a window size to the terminal behind f.
func SetWindowSize(f *os.File, rows, cols uint16) error {
	return pty.Setsize(f, &pty.Winsize{Rows: rows, Cols: cols})
}

// WindowSize reads the current window size of the terminal behind f.
func WindowSize(f *os.File) (rows, cols uint16, err error) {
	ws, err := pty.GetsizeFull(f)
	if err != nil {
		return 0, 0, err
	}
	return ws.Rows, ws.Cols, nil
}
