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
	// ShopFloorCallTimeout bounds a single backend shop-floor call. Hitting
	// it is surfaced to the device as "shop floor unavailable", never as a
	// hung request.
	ShopFloorCallTimeout = 10 * time.Second

	// DefaultShopFloorBackendURL is used when the active configuration does
	// not override the backend endpoint.
	DefaultShopFloorBackendURL = "http://localhost:8090"

	// DUTRPCVersion is reported by Ping so stations can verify protocol
	// compatibility before provisioning.
	DUTRPCVersion = 3
)
