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

// Package shopfloor is the device-facing RPC surface. It brokers calls from
// manufacturing stations to the shop floor backend named by the active
// configuration and serves the local parameter store. Only methods listed in
// the route table are reachable; everything else on the bridge is private.
package shopfloor

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/factorykit/provision-core/pkg/configstore"
	"github.com/factorykit/provision-core/pkg/constants"
	"github.com/factorykit/provision-core/pkg/envstore"
	"github.com/factorykit/provision-core/pkg/logger"
	"github.com/factorykit/provision-core/pkg/metrics"
	"github.com/factorykit/provision-core/pkg/servicemgr"
)

// Bridge wires the device RPC methods and the admin surface onto one router.
type Bridge struct {
	configs *configstore.Store
	manager *servicemgr.Manager
	env     *envstore.Store
	backend *BackendClient

	// fallbackBackendURL applies when the active configuration does not set
	// a backend itself. It comes from the bootstrap configuration.
	fallbackBackendURL string

	logger *zap.SugaredLogger
}

// NewBridge creates a Bridge over the given collaborators.
func NewBridge(configs *configstore.Store, manager *servicemgr.Manager, env *envstore.Store, backend *BackendClient, fallbackBackendURL string) *Bridge {
	if fallbackBackendURL == "" {
		fallbackBackendURL = constants.DefaultShopFloorBackendURL
	}
	return &Bridge{
		configs:            configs,
		manager:            manager,
		env:                env,
		backend:            backend,
		fallbackBackendURL: fallbackBackendURL,
		logger:             logger.For(logger.ComponentShopFloorBridge),
	}
}

// rpcMethod is one externally callable device method. The table below is the
// complete device surface; a method absent from it does not exist as far as
// the factory network is concerned.
type rpcMethod struct {
	name    string
	handler func(*gin.Context, DeviceSession) (interface{}, error)
}

// Router builds the HTTP router with the device RPC and admin routes.
func (b *Bridge) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	for _, method := range []rpcMethod{
		{"ping", b.ping},
		{"get_device_info", b.getDeviceInfo},
		{"report_test_result", b.reportTestResult},
		{"get_time", b.getTime},
		{"list_parameters", b.listParameters},
		{"get_parameter", b.getParameter},
	} {
		router.POST("/rpc/"+method.name, b.dispatch(method))
	}

	b.registerAdminRoutes(router)

	return router
}

// deviceRequest is the identity envelope every device call carries. Method
// specific fields ride alongside and are bound separately by the handler.
type deviceRequest struct {
	SerialNumber string `json:"sn"`
	MAC          string `json:"mac"`
	Stage        string `json:"stage"`
}

// dispatch opens a DeviceSession, runs the handler and maps its error to the
// device-visible taxonomy: HandlerError passes the backend message through
// as 422, everything infrastructural is 503.
func (b *Bridge) dispatch(method rpcMethod) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		var identity deviceRequest
		if err := c.ShouldBindBodyWithJSON(&identity); err != nil {
			metrics.RecordRPCCall(method.name, "bad_request", time.Since(start))
			c.JSON(http.StatusBadRequest, gin.H{"error": "request body is not valid JSON"})
			return
		}

		// The session records which configuration was live when the call
		// arrived; a concurrent activation does not affect this call.
		hash, _, err := b.env.GetActiveConfigHash(c.Request.Context())
		if err != nil {
			metrics.RecordRPCCall(method.name, "error", time.Since(start))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": ErrShopFloorUnavailable.Error()})
			return
		}

		session := newSession(configstore.DeviceSelector{
			SerialNumber: identity.SerialNumber,
			MAC:          identity.MAC,
			Stage:        identity.Stage,
		}, hash)

		response, err := method.handler(c, session)
		if err != nil {
			b.writeRPCError(c, method.name, session, err)
			metrics.RecordRPCCall(method.name, "error", time.Since(start))
			return
		}

		metrics.RecordRPCCall(method.name, "ok", time.Since(start))

		switch body := response.(type) {
		case json.RawMessage:
			c.Data(http.StatusOK, "application/json", body)
		default:
			c.JSON(http.StatusOK, body)
		}
	}
}

func (b *Bridge) writeRPCError(c *gin.Context, method string, session DeviceSession, err error) {
	var handlerErr *HandlerError

	switch {
	case errors.As(err, &handlerErr):
		b.logger.Infof("RPC %s rejected by backend (session %s): %s", method, session.ID, handlerErr.Message)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": handlerErr.Message})
	case errors.Is(err, ErrShopFloorUnavailable), errors.Is(err, configstore.ErrNoActiveConfig):
		b.logger.Warnf("RPC %s failed (session %s): %v", method, session.ID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		b.logger.Errorf("RPC %s failed (session %s): %v", method, session.ID, err)
		metrics.IncErrorCount(metrics.ComponentShopFloorBridge, method)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// backendURL resolves the backend endpoint from the active configuration.
func (b *Bridge) backendURL(c *gin.Context) (string, error) {
	cfg, err := b.configs.GetActive(c.Request.Context())
	if err != nil {
		return "", err
	}
	return cfg.StringParam("shopfloor_proxy", "backend_url", b.fallbackBackendURL), nil
}
