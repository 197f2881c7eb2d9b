// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package servicemgr

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/factorykit/provision-core/pkg/constants"
)

// supervisedProcess wraps one running OS process. The watcher goroutine owns
// the exit path: it fires onUnexpectedExit exactly once when the process dies
// without stop having been requested.
type supervisedProcess struct {
	serviceName string
	spec        ProcessSpec
	logger      *zap.SugaredLogger

	cmd           *exec.Cmd
	stopRequested atomic.Bool
	done          chan struct{}
	exitErr       error

	onUnexpectedExit func()
}

func newSupervisedProcess(serviceName string, spec ProcessSpec, log *zap.SugaredLogger, onUnexpectedExit func()) *supervisedProcess {
	return &supervisedProcess{
		serviceName:      serviceName,
		spec:             spec,
		logger:           log,
		done:             make(chan struct{}),
		onUnexpectedExit: onUnexpectedExit,
	}
}

// start launches the process and its watcher goroutine. The context bounds
// only the launch, not the process lifetime.
func (p *supervisedProcess) start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(p.spec.Command) == 0 {
		return fmt.Errorf("process %s/%s has an empty command", p.serviceName, p.spec.Name)
	}

	cmd := exec.Command(p.spec.Command[0], p.spec.Command[1:]...)
	cmd.Env = append(os.Environ(), p.spec.Env...)
	cmd.Dir = p.spec.Dir
	// Own process group so a stop signal never leaks to the server itself.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s/%s: %w", p.serviceName, p.spec.Name, err)
	}

	p.cmd = cmd
	p.logger.Infof("Started process %s/%s (pid %d)", p.serviceName, p.spec.Name, cmd.Process.Pid)

	go p.watch()

	return nil
}

func (p *supervisedProcess) watch() {
	p.exitErr = p.cmd.Wait()
	close(p.done)

	if p.stopRequested.Load() {
		return
	}

	if p.exitErr != nil {
		p.logger.Warnf("Process %s/%s exited unexpectedly: %v", p.serviceName, p.spec.Name, p.exitErr)
	} else {
		p.logger.Warnf("Process %s/%s exited unexpectedly with status 0", p.serviceName, p.spec.Name)
	}

	if p.onUnexpectedExit != nil {
		p.onUnexpectedExit()
	}
}

// stop terminates the process group, SIGTERM first, SIGKILL when the process
// ignores it past the stop timeout. Idempotent.
func (p *supervisedProcess) stop(ctx context.Context) error {
	p.stopRequested.Store(true)

	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}

	select {
	case <-p.done:
		return nil
	default:
	}

	// Negative pid signals the whole group.
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("failed to signal %s/%s: %w", p.serviceName, p.spec.Name, err)
	}

	timer := time.NewTimer(constants.ServiceStopTimeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	p.logger.Warnf("Process %s/%s ignored SIGTERM, killing", p.serviceName, p.spec.Name)
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return fmt.Errorf("failed to kill %s/%s: %w", p.serviceName, p.spec.Name, err)
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// alive reports whether the OS still knows the pid. Used by the liveness
// sweep as a backstop for exits the watcher has not observed yet.
func (p *supervisedProcess) alive(ctx context.Context) bool {
	if p.cmd == nil || p.cmd.Process == nil {
		return false
	}

	select {
	case <-p.done:
		return false
	default:
	}

	exists, err := process.PidExistsWithContext(ctx, int32(p.cmd.Process.Pid))
	if err != nil {
		return true
	}
	return exists
}
