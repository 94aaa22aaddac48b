// File: shm/rts.go
// Author: momentics <momentics@gmail.com>
//
// Runtime system for domain-connected worker processes: a launcher that
// creates the domain and starts N workers in one process group, and the
// worker-side bootstrap.

package shm

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EnvPrefix is the environment namespace of the launcher.
const EnvPrefix = "SHARED"

// RunWorkers creates a domain for nofProcesses participants and starts
// one worker process per rank, executing path with args. The workers
// share one process group; if any of them exits non-zero or dies on a
// signal, the whole group receives SIGTERM and RunWorkers returns an
// error. The domain is released when the last worker is gone.
func RunWorkers(nofProcesses, bufsize, extraSize int, path string, args []string, opts ...Option) error {
	if nofProcesses == 0 {
		return nil
	}
	d, err := Setup(bufsize, nofProcesses, extraSize, opts...)
	if err != nil {
		return err
	}
	defer d.Free()
	log := d.log

	var group int
	var killOnce sync.Once
	abort := func() {
		killOnce.Do(func() {
			if group != 0 {
				_ = syscall.Kill(-group, syscall.SIGTERM)
			}
		})
	}

	cmds := make([]*exec.Cmd, 0, nofProcesses)
	for rank := 0; rank < nofProcesses; rank++ {
		cmd := exec.Command(path, args...)
		cmd.Env = append(os.Environ(),
			Env{Name: d.Name(), Rank: uint32(rank)}.environ(EnvPrefix)...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: group}
		if err := cmd.Start(); err != nil {
			abort()
			for _, c := range cmds {
				_ = c.Wait()
			}
			return fmt.Errorf("shm: starting worker %d: %w", rank, err)
		}
		if group == 0 {
			group = cmd.Process.Pid
		}
		log.Debug("worker started",
			zap.Int("rank", rank), zap.Int("pid", cmd.Process.Pid))
		cmds = append(cmds, cmd)
	}

	var g errgroup.Group
	for rank, cmd := range cmds {
		rank, cmd := rank, cmd
		g.Go(func() error {
			err := cmd.Wait()
			if err != nil {
				log.Warn("worker failed", zap.Int("rank", rank), zap.Error(err))
				abort()
				return fmt.Errorf("worker %d: %w", rank, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Init connects the calling worker to the domain its launcher published
// in the environment.
func Init(opts ...Option) (*Domain, error) {
	e, err := LoadEnv(EnvPrefix)
	if err != nil {
		return nil, err
	}
	return Connect(e.Name, int(e.Rank), opts...)
}

// Finish releases the worker's connection.
func Finish(d *Domain) {
	d.Free()
}
