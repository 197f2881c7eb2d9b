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
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/factorykit/provision-core/pkg/constants"
	"github.com/factorykit/provision-core/pkg/logger"
	"github.com/factorykit/provision-core/pkg/service/httpclient"
)

// BackendClient speaks the shop floor backend's HTTP/JSON method protocol:
// one POST per call to <backend>/<method>, request and response both JSON.
//
// Failure mapping is the whole point of this type. A 4xx with a JSON error
// field is the backend rejecting the device for a business reason and comes
// back as a HandlerError with the backend's message untouched. Everything
// else, connect errors, timeouts, 5xx, is ErrShopFloorUnavailable.
type BackendClient struct {
	client httpclient.HTTPClient
	logger *zap.SugaredLogger
}

// NewBackendClient creates a BackendClient over the given HTTP client.
func NewBackendClient(client httpclient.HTTPClient) *BackendClient {
	return &BackendClient{
		client: client,
		logger: logger.For(logger.ComponentShopFloorClient),
	}
}

// Call invokes one backend method and returns the raw response body on
// success. The call is bounded by the shop floor timeout regardless of the
// caller's context.
func (c *BackendClient) Call(ctx context.Context, backendURL, method string, payload interface{}) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.ShopFloorCallTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	url := strings.TrimRight(backendURL, "/") + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrShopFloorUnavailable, method, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warnf("Failed to close %s response body: %v", method, err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrShopFloorUnavailable, method, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return raw, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &HandlerError{Message: backendMessage(raw)}
	default:
		return nil, fmt.Errorf("%w: %s returned status %d", ErrShopFloorUnavailable, method, resp.StatusCode)
	}
}

// backendMessage extracts the error field from a backend rejection, falling
// back to the raw body when the backend did not send JSON.
func backendMessage(raw []byte) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return string(raw)
}
