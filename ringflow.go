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

package ringflow

import (
	"context"
	"embed"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/ringflow/ringflow/config"
	"github.com/ringflow/ringflow/database"
	"github.com/ringflow/ringflow/internal/notification"
	redis_db "github.com/ringflow/ringflow/internal/redis-db"
	"github.com/ringflow/ringflow/internal/search"
	"github.com/ringflow/ringflow/internal/voice"
)

// Ringflow represents the main struct for the Ringflow campaign engine.
type Ringflow struct {
	queue      *Queue
	search     *search.TypesenseClient
	redis      redis.UniversalClient
	datasource database.IDataSource
	voice      voice.CallDispatcher
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewRingflow initializes a new instance of Ringflow with the provided database datasource.
// It fetches the configuration, initializes the Redis client, queue, search client and
// voice provider client.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
//
// Returns:
// - *Ringflow: A pointer to the newly created Ringflow instance.
// - error: An error if any of the initialization steps fail.
func NewRingflow(db database.IDataSource) (*Ringflow, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{configuration.Redis.Dns}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)
	newSearch := search.NewTypesenseClient(configuration.TypeSenseKey, []string{configuration.TypeSense.Dns})
	newRingflow := &Ringflow{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		search:     newSearch,
		voice:      voice.NewClient(configuration.VoiceProvider),
	}

	// Internal packages emit lifecycle events without importing this package.
	notification.RegisterWebhookSender(func(event string, payload interface{}) error {
		return SendWebhook(NewWebhook{Event: event, Payload: payload})
	})
	return newRingflow, nil
}

// GetDataSource returns the lead store. Components assembled outside this
// package, like the reindex manager, read through it.
func (r *Ringflow) GetDataSource() database.IDataSource {
	return r.datasource
}

// GetSearchClient returns the Typesense client.
func (r *Ringflow) GetSearchClient() *search.TypesenseClient {
	return r.search
}

// TriggerBatchRun enqueues an on-demand dispatch cycle and returns the queued
// task id. An empty id means the trigger coalesced with one already pending.
func (r *Ringflow) TriggerBatchRun(ctx context.Context, source string) (string, error) {
	return r.queue.EnqueueBatchRun(ctx, source)
}

// Health pings the lead store and the queue backend. The returned map always
// carries one entry per component so callers can report partial outages.
func (r *Ringflow) Health(ctx context.Context) (map[string]string, error) {
	components := map[string]string{"database": "ok", "redis": "ok"}
	var degraded bool
	if _, err := r.datasource.CountLeadsByStatus(ctx); err != nil {
		components["database"] = err.Error()
		degraded = true
	}
	if err := r.redis.Ping(ctx).Err(); err != nil {
		components["redis"] = err.Error()
		degraded = true
	}
	if degraded {
		return components, errors.New("one or more components are unavailable")
	}
	return components, nil
}
