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
	"crypto/subtle"
	"net/http"

	"github.com/ringflow/ringflow/config"
	"github.com/ringflow/ringflow/internal/apierror"
	"github.com/ringflow/ringflow/model"

	"github.com/gin-gonic/gin"
)

// ReceiveCallEvent is the voice provider's webhook ingress. Events other than
// call_analyzed are acknowledged without touching any lead; analyzed events
// run through the outcome resolver. The matching key is the dialed number, so
// an event for an unknown number comes back 404 and the provider stops
// retrying it.
func (a Api) ReceiveCallEvent(c *gin.Context) {
	conf, err := config.Fetch()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "configuration unavailable"})
		return
	}

	if secret := conf.VoiceProvider.WebhookSecret; secret != "" {
		provided := c.GetHeader("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(secret), []byte(provided)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook secret"})
			return
		}
	}

	var event model.CallEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if _, err := a.ringflow.ProcessCallEvent(c.Request.Context(), &event); err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "event acknowledged"})
}
