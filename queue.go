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
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/ringflow/ringflow/config"
	redis_db "github.com/ringflow/ringflow/internal/redis-db"

	"github.com/hibiken/asynq"
)

// Task type names shared between the scheduler, the API trigger and the
// worker mux.
const (
	TaskBatchRun     = "batch:run"
	TaskRecoverStale = "leads:recover-stale"
)

// Queue represents a queue for handling various tasks.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// BatchTriggerPayload carries the origin of a batch-run request so worker
// logs can tell scheduled runs from manual ones. Nothing volatile belongs in
// here: task uniqueness hashes the payload, so identical triggers must
// marshal identically to coalesce.
type BatchTriggerPayload struct {
	Source string `json:"source"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueBatchRun enqueues a batch-run trigger task and returns the queued
// task id. Triggers are unique for one minute per source: a second request
// while an identical one is pending coalesces instead of queueing behind it,
// and comes back with an empty id. The Redis lock inside RunBatch is the real
// overlap guard; uniqueness only keeps the queue tidy.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - source string: The origin of the trigger ("scheduler", "api", ...).
//
// Returns:
// - string: The id of the queued task, empty when the trigger coalesced.
// - error: An error if the task could not be enqueued.
func (q *Queue) EnqueueBatchRun(ctx context.Context, source string) (string, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(BatchTriggerPayload{Source: source})
	if err != nil {
		return "", err
	}

	taskOptions := []asynq.Option{
		asynq.Queue(cfg.Queue.BatchQueue),
		asynq.Unique(time.Minute),
		asynq.MaxRetry(cfg.Queue.MaxRetryAttempts),
	}
	task := asynq.NewTask(TaskBatchRun, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			log.Printf(" [*] Batch trigger from %s coalesced with a pending one", source)
			return "", nil
		}
		log.Println(err, info)
		return "", err
	}
	log.Printf(" [*] Successfully enqueued batch trigger %s from: %s", info.ID, source)
	return info.ID, nil
}

// queueIndexData enqueues a task to index data in a specified collection.
//
// Parameters:
// - id string: The ID of the data to index.
// - collection string: The name of the collection to index the data in.
// - data interface{}: The data to be indexed.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) queueIndexData(id string, collection string, data interface{}) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	if cfg.TypeSense.Dns == "" {
		return nil
	}

	payload := map[string]interface{}{
		"collection": collection,
		"payload":    data,
	}

	IPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{asynq.Queue(cfg.Queue.IndexQueue)}
	task := asynq.NewTask(cfg.Queue.IndexQueue, IPayload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued index data: %+v", id)
	return nil
}
