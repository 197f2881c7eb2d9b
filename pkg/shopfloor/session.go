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

package shopfloor

import (
	"time"

	"github.com/google/uuid"

	"github.com/factorykit/provision-core/pkg/configstore"
)

// DeviceSession correlates one inbound device call with the device's
// identity and the configuration that was active when the call arrived.
// Sessions live for a single call and are never stored; the ID exists so
// logs on both sides of the backend hop can be joined.
type DeviceSession struct {
	ID         string
	Device     configstore.DeviceSelector
	ConfigHash string
	OpenedAt   time.Time
}

func newSession(device configstore.DeviceSelector, configHash string) DeviceSession {
	return DeviceSession{
		ID:         uuid.NewString(),
		Device:     device,
		ConfigHash: configHash,
		OpenedAt:   time.Now(),
	}
}
