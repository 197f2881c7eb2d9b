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
	// ConfigStageTimeout bounds a full validate+materialize+write cycle.
	ConfigStageTimeout = 30 * time.Second

	// ConfigActivateTimeout bounds the pointer swap. The swap itself is a
	// single rename; the budget covers the staged-document existence checks.
	ConfigActivateTimeout = 5 * time.Second

	// AmountReadersForConfigStore defines how many readers can hold the
	// config store's read lock at the same time. It is a safety net, the
	// actual number just has to be "high enough".
	AmountReadersForConfigStore = 100

	// SupportedConfigAPIRange is the semver range of configuration document
	// apiVersion values this server accepts.
	SupportedConfigAPIRange = ">= 1.0.0, < 2.0.0"
)
