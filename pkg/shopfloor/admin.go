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
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/factorykit/provision-core/pkg/configstore"
)

// registerAdminRoutes mounts the operator surface: stage, activate, history
// and service states. Deployment tooling calls these, devices never do.
func (b *Bridge) registerAdminRoutes(router *gin.Engine) {
	admin := router.Group("/admin")
	admin.POST("/configs", b.stageConfig)
	admin.POST("/configs/:hash/activate", b.activateConfig)
	admin.GET("/configs", b.listConfigs)
	admin.GET("/services", b.serviceStates)
}

func (b *Bridge) stageConfig(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	hash, err := b.configs.Stage(c.Request.Context(), raw)
	if err != nil {
		var validationErr *configstore.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":  "validation failed",
				"issues": validationErr.Issues,
			})
			return
		}
		b.logger.Errorf("Failed to stage configuration: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stage configuration"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"hash": hash})
}

// activateConfig swaps the active configuration and reconciles the service
// set in one operation. The response always carries the full per-service
// outcome, operators get the exact list of what failed, never a generic
// error.
func (b *Bridge) activateConfig(c *gin.Context) {
	hash := c.Param("hash")

	if err := b.configs.Activate(c.Request.Context(), hash); err != nil {
		if errors.Is(err, configstore.ErrConfigNotStaged) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		b.logger.Errorf("Failed to activate configuration %s: %v", hash, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to activate configuration"})
		return
	}

	cfg, err := b.configs.GetActive(c.Request.Context())
	if err != nil {
		b.logger.Errorf("Failed to load activated configuration %s: %v", hash, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load activated configuration"})
		return
	}

	report, err := b.manager.Reconcile(c.Request.Context(), cfg)
	if err != nil {
		b.logger.Errorf("Reconcile after activating %s failed: %v", hash, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconcile failed"})
		return
	}

	failed := make([]gin.H, 0, len(report.Failed))
	for _, failure := range report.Failed {
		failed = append(failed, gin.H{"service": failure.Service, "error": failure.Err.Error()})
	}

	c.JSON(http.StatusOK, gin.H{
		"hash":    hash,
		"started": report.Started,
		"stopped": report.Stopped,
		"kept":    report.Kept,
		"failed":  failed,
	})
}

func (b *Bridge) listConfigs(c *gin.Context) {
	history, err := b.configs.ListHistory(c.Request.Context())
	if err != nil {
		b.logger.Errorf("Failed to list configurations: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list configurations"})
		return
	}

	active, _, err := b.env.GetActiveConfigHash(c.Request.Context())
	if err != nil {
		b.logger.Errorf("Failed to read active configuration hash: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read active configuration"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"active": active, "history": history})
}

func (b *Bridge) serviceStates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"services": b.manager.States()})
}
