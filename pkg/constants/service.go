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

package constants

import "time"

const (
	// ServiceStartTimeout bounds a single service process start. A process
	// that has not failed within this window is considered started.
	ServiceStartTimeout = 10 * time.Second

	// ServiceStopTimeout is how long a process gets after SIGTERM before it
	// is killed.
	ServiceStopTimeout = 20 * time.Second

	// ServiceRestartDelay is the initial backoff delay before the one
	// automatic restart of an unexpectedly exited process.
	ServiceRestartDelay = 500 * time.Millisecond

	// ServiceDegradedWindow is the window within which a second unexpected
	// exit marks the service degraded instead of restarting it again.
	ServiceDegradedWindow = 30 * time.Second

	// ServiceLivenessInterval is how often the supervisor cross-checks that
	// a supposedly running process still exists.
	ServiceLivenessInterval = 5 * time.Second
)
