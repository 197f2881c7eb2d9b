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

import "errors"

// ErrShopFloorUnavailable is an infrastructure failure between this server
// and the shop floor backend: connect errors, timeouts, 5xx responses. The
// device retries on its own schedule; the bridge never retries.
var ErrShopFloorUnavailable = errors.New("shop floor backend unavailable")

// HandlerError is a business-logic failure raised by the shop floor backend.
// The backend's message goes back to the device verbatim, it is the only
// party that knows why the device was rejected.
type HandlerError struct {
	Message string
}

func (e *HandlerError) Error() string {
	return "shop floor handler: " + e.Message
}
