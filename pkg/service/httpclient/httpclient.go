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

// Package httpclient wraps net/http behind a small interface so callers can
// be tested without a live backend and so request timeouts always derive
// from the caller's context deadline.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/factorykit/provision-core/pkg/ctxutil"
	"github.com/factorykit/provision-core/pkg/logger"
)

var (
	// defaultTransport is a shared transport with connection pooling
	defaultTransport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   50 * time.Millisecond,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   50 * time.Millisecond,
		ExpectContinueTimeout: 100 * time.Millisecond,
		MaxIdleConnsPerHost:   10,
		DisableCompression:    true,
	}

	// sharedClient is a reusable client for quick local requests
	sharedClient = &http.Client{
		Transport: defaultTransport,
		Timeout:   1 * time.Second,
	}
)

// HTTPClient interface for making HTTP requests
type HTTPClient interface {
	// Do executes an HTTP request and returns the response
	Do(req *http.Request) (*http.Response, error)
}

// DefaultHTTPClient is the default implementation of HTTPClient
type DefaultHTTPClient struct {
	logger *zap.SugaredLogger
}

// NewDefaultHTTPClient creates a new DefaultHTTPClient
func NewDefaultHTTPClient() *DefaultHTTPClient {
	return &DefaultHTTPClient{
		logger: logger.For("HTTPClient"),
	}
}

// Do performs the HTTP request, creating a context-optimized client
func (c *DefaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// The shared client is faster for local requests without a deadline
	// than building a client per request.
	_, hasDeadline := ctx.Deadline()
	if !hasDeadline && isLocalRequest(req.URL.Host) {
		return sharedClient.Do(req)
	}

	client, err := c.createClientFromContext(ctx)
	if err != nil {
		return nil, err
	}

	return client.Do(req)
}

// isLocalRequest checks if the host is a localhost or loopback address
func isLocalRequest(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "[::1]" || host == ""
}

// createClientFromContext creates an HTTP client with timeouts based on the
// context deadline
func (c *DefaultHTTPClient) createClientFromContext(ctx context.Context) (*http.Client, error) {
	remaining, _, err := ctxutil.HasSufficientTime(ctx, time.Millisecond)
	if err != nil {
		if errors.Is(err, ctxutil.ErrNoDeadline) {
			return nil, fmt.Errorf("no deadline set in context")
		}
		c.logger.Warnf("Creating HTTP client with limited time: %v", err)
	}

	timeout := remaining

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout / 2,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       timeout / 4,
		TLSHandshakeTimeout:   timeout / 4,
		ExpectContinueTimeout: timeout / 4,
		ResponseHeaderTimeout: timeout / 2,
		MaxIdleConnsPerHost:   10,
		DisableCompression:    true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}
