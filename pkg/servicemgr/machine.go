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

	"github.com/looplab/fsm"

	"github.com/factorykit/provision-core/pkg/metrics"
)

// Lifecycle states of one supervised service.
const (
	StateStopped  = "stopped"
	StateStarting = "starting"
	StateRunning  = "running"
	StateDegraded = "degraded"
)

// Lifecycle events.
const (
	EventStart     = "start"
	EventStartDone = "start_done"
	EventDegrade   = "degrade"
	EventStop      = "stop"
)

// newServiceMachine builds the per-service state machine. Degraded is a
// terminal state until the next reconcile replaces the instance; there is no
// recover event on purpose.
func newServiceMachine(serviceName string) *fsm.FSM {
	return fsm.NewFSM(
		StateStopped,
		fsm.Events{
			{Name: EventStart, Src: []string{StateStopped}, Dst: StateStarting},
			{Name: EventStartDone, Src: []string{StateStarting}, Dst: StateRunning},
			{Name: EventDegrade, Src: []string{StateStarting, StateRunning}, Dst: StateDegraded},
			{Name: EventStop, Src: []string{StateStarting, StateRunning, StateDegraded}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				metrics.SetServiceState(metrics.ComponentServiceManager, serviceName, stateGaugeValue(e.Dst))
			},
		},
	)
}

func stateGaugeValue(state string) float64 {
	switch state {
	case StateStopped:
		return 0
	case StateStarting:
		return 1
	case StateRunning:
		return 2
	case StateDegraded:
		return 3
	default:
		return -1
	}
}
