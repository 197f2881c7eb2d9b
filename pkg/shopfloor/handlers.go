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
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/factorykit/provision-core/pkg/constants"
)

// ping answers locally. Devices use it to probe reachability and to learn
// the RPC protocol version before committing to a test run.
func (b *Bridge) ping(c *gin.Context, session DeviceSession) (interface{}, error) {
	return gin.H{
		"version":     constants.DUTRPCVersion,
		"session_id":  session.ID,
		"config_hash": session.ConfigHash,
	}, nil
}

// getTime answers locally with server time, devices on the line have no RTC
// worth trusting.
func (b *Bridge) getTime(c *gin.Context, session DeviceSession) (interface{}, error) {
	now := time.Now()
	return gin.H{
		"time":     float64(now.UnixNano()) / float64(time.Second),
		"time_rfc": now.Format(time.RFC3339Nano),
	}, nil
}

// getDeviceInfo forwards to the backend, enriching the request with the
// bundle the active configuration assigns to this device. The backend's
// response passes through unchanged.
func (b *Bridge) getDeviceInfo(c *gin.Context, session DeviceSession) (interface{}, error) {
	backendURL, err := b.backendURL(c)
	if err != nil {
		return nil, err
	}

	cfg, err := b.configs.GetActive(c.Request.Context())
	if err != nil {
		return nil, err
	}

	payload := gin.H{
		"sn":         session.Device.SerialNumber,
		"mac":        session.Device.MAC,
		"stage":      session.Device.Stage,
		"session_id": session.ID,
	}
	if bundle := cfg.BundleForDevice(session.Device); bundle != nil {
		payload["bundle_id"] = bundle.ID
	}

	return b.backend.Call(c.Request.Context(), backendURL, "get_device_info", payload)
}

// reportTestResult forwards a device's test verdict to the backend, the
// system of record for test results. Nothing is stored locally.
func (b *Bridge) reportTestResult(c *gin.Context, session DeviceSession) (interface{}, error) {
	var request struct {
		deviceRequest
		TestID string `json:"test_id"`
		Status string `json:"status"`
		Report string `json:"report,omitempty"`
	}
	if err := c.ShouldBindBodyWithJSON(&request); err != nil {
		return nil, &HandlerError{Message: "test result body is not valid JSON"}
	}
	if request.TestID == "" || request.Status == "" {
		return nil, &HandlerError{Message: "test_id and status are required"}
	}

	backendURL, err := b.backendURL(c)
	if err != nil {
		return nil, err
	}

	payload := gin.H{
		"sn":         session.Device.SerialNumber,
		"mac":        session.Device.MAC,
		"stage":      session.Device.Stage,
		"session_id": session.ID,
		"test_id":    request.TestID,
		"status":     request.Status,
	}
	if request.Report != "" {
		payload["report"] = request.Report
	}

	return b.backend.Call(c.Request.Context(), backendURL, "report_test_result", payload)
}

// listParameters answers locally from the parameter store. An optional glob
// narrows the listing.
func (b *Bridge) listParameters(c *gin.Context, session DeviceSession) (interface{}, error) {
	var request struct {
		deviceRequest
		Pattern string `json:"pattern,omitempty"`
	}
	if err := c.ShouldBindBodyWithJSON(&request); err != nil {
		return nil, &HandlerError{Message: "request body is not valid JSON"}
	}

	pattern := request.Pattern
	if pattern == "" {
		pattern = "*"
	}
	if strings.Contains(pattern, "/") || strings.Contains(pattern, "..") {
		return nil, &HandlerError{Message: fmt.Sprintf("pattern %q must not traverse directories", pattern)}
	}

	matches, err := b.env.FS().Glob(c.Request.Context(), filepath.Join(b.env.ParametersDir(), pattern))
	if err != nil {
		return nil, fmt.Errorf("failed to list parameters: %w", err)
	}

	files := make([]string, 0, len(matches))
	for _, match := range matches {
		files = append(files, filepath.Base(match))
	}

	return gin.H{"files": files}, nil
}

// getParameter serves one file from the parameter store.
func (b *Bridge) getParameter(c *gin.Context, session DeviceSession) (interface{}, error) {
	var request struct {
		deviceRequest
		Path string `json:"path"`
	}
	if err := c.ShouldBindBodyWithJSON(&request); err != nil {
		return nil, &HandlerError{Message: "request body is not valid JSON"}
	}
	if request.Path == "" {
		return nil, &HandlerError{Message: "path is required"}
	}

	// Confine the lookup to the parameter directory.
	clean := path.Clean("/" + request.Path)
	full := filepath.Join(b.env.ParametersDir(), filepath.FromSlash(clean))
	if !strings.HasPrefix(full, b.env.ParametersDir()) {
		return nil, &HandlerError{Message: fmt.Sprintf("path %q escapes the parameter store", request.Path)}
	}

	exists, err := b.env.FS().PathExists(c.Request.Context(), full)
	if err != nil {
		return nil, fmt.Errorf("failed to probe parameter %s: %w", request.Path, err)
	}
	if !exists {
		return nil, &HandlerError{Message: fmt.Sprintf("parameter %q not found", request.Path)}
	}

	data, err := b.env.FS().ReadFile(c.Request.Context(), full)
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter %s: %w", request.Path, err)
	}

	return gin.H{"path": clean[1:], "content": string(data)}, nil
}
