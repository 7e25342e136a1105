/*
Copyright 2025 Ringflow Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"net/http"

	model2 "github.com/ringflow/ringflow/api/model"
	"github.com/ringflow/ringflow/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TriggerBatch queues a dispatch cycle outside the scheduler's cadence. The
// run itself happens on a worker; callers get the queued task id back, or a
// coalesced notice when an identical trigger is already waiting.
func (a Api) TriggerBatch(c *gin.Context) {
	var req model2.TriggerBatch
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Source = ""
	}
	if req.Source == "" {
		req.Source = "api"
	}

	batchID, err := a.ringflow.TriggerBatchRun(c.Request.Context(), req.Source)
	if err != nil {
		logrus.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue batch run"})
		return
	}

	if batchID == "" {
		c.JSON(http.StatusAccepted, gin.H{"message": "batch run already queued", "source": req.Source})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "batch run queued", "batch_id": batchID, "source": req.Source})
}

// RecoverStaleCalls sweeps leads stuck in CALLING past the staleness cutoff.
// The daily scheduler runs the same sweep; this route exists for operators
// who do not want to wait for it.
func (a Api) RecoverStaleCalls(c *gin.Context) {
	recovered, err := a.ringflow.RecoverStaleCalls(c.Request.Context())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recovered": recovered})
}
