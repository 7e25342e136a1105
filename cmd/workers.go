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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"
	"go.opentelemetry.io/otel"

	"github.com/ringflow/ringflow"
	"github.com/ringflow/ringflow/config"
	redis_db "github.com/ringflow/ringflow/internal/redis-db"
	"github.com/ringflow/ringflow/internal/search"
	"github.com/ringflow/ringflow/model"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
)

// indexData represents the data structure used for indexing data in the system.
// It includes the collection name and the payload which is the data to be indexed.
type indexData struct {
	Collection string                 `json:"collection"`
	Payload    map[string]interface{} `json:"payload"`
}

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

// processBatchRun executes one dispatch cycle for a batch trigger received
// from the Redis queue. Policy skips (lock held, outside calling hours, empty
// pool) complete the task; only infrastructure errors are returned so asynq
// retries them.
func (b *ringflowInstance) processBatchRun(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("ringflow.batch.worker").Start(ctx, "Process Batch Trigger From Redis Queue")
	defer span.End()

	var trigger ringflow.BatchTriggerPayload
	if err := json.Unmarshal(t.Payload(), &trigger); err != nil {
		logrus.Error(err)
		return err
	}

	run, err := b.ringflow.RunBatch(ctx, time.Now())
	if err != nil {
		logrus.Infof("Batch trigger from %s pushed back for retry due to error: %v", trigger.Source, err)
		return err
	}

	if run.Status == model.BatchSkipped {
		log.Printf(" [*] Batch %s from %s skipped: %s", run.BatchID, trigger.Source, run.Reason)
		return nil
	}
	log.Printf(" [*] Batch %s from %s completed: %d of %d leads dispatched", run.BatchID, trigger.Source, run.CallsInitiated, run.PoolSize)
	return nil
}

// processStaleRecovery sweeps leads stuck in CALLING and fails them over.
func (b *ringflowInstance) processStaleRecovery(ctx context.Context, _ *asynq.Task) error {
	ctx, span := otel.Tracer("ringflow.recovery.worker").Start(ctx, "Process Stale Recovery From Redis Queue")
	defer span.End()

	recovered, err := b.ringflow.RecoverStaleCalls(ctx)
	if err != nil {
		logrus.Error(err)
		return err
	}

	log.Printf(" [*] Stale call recovery finished, %d leads moved to FAILED", recovered)
	return nil
}

// indexData indexes data into TypeSense for searchability.
// It fetches the collection name and payload from the task, ensures the collections exist,
// and sends the payload to the appropriate TypeSense collection for indexing.
func (b *ringflowInstance) indexData(ctx context.Context, t *asynq.Task) error {
	var data indexData

	// Unmarshal the indexing data from the task payload.
	if err := json.Unmarshal(t.Payload(), &data); err != nil {
		logrus.Error(err)
		return err
	}

	collection := data.Collection
	payload := data.Payload

	// Initialize a new TypeSense client and ensure collections exist.
	newSearch := search.NewTypesenseClient(b.cnf.TypeSenseKey, []string{b.cnf.TypeSense.Dns})
	err := newSearch.EnsureCollectionsExist(ctx)
	if err != nil {
		log.Printf("Failed to ensure collections exist: %v", err)
		return err
	}

	// Handle the notification and send the payload to the collection for indexing.
	err = newSearch.HandleNotification(ctx, collection, payload)
	if err != nil {
		log.Println("Error indexing data", err)
		return err
	}

	log.Println(" [*] Data indexed", collection)
	return nil
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.BatchQueue] = 1
	queues[cfg.Queue.WebhookQueue] = 3
	queues[cfg.Queue.IndexQueue] = 1
	queues[cfg.Queue.RecoveryQueue] = 1
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			// A running batch holds its worker goroutine for the whole dispatch
			// window; webhook and index tasks ride the remaining slots.
			Concurrency: 4,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *ringflowInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	mux.HandleFunc(ringflow.TaskBatchRun, b.processBatchRun)
	mux.HandleFunc(ringflow.TaskRecoverStale, b.processStaleRecovery)
	mux.HandleFunc(cfg.Queue.IndexQueue, b.indexData)
	mux.HandleFunc(cfg.Queue.WebhookQueue, ringflow.ProcessWebhook)
}

// initializeScheduler registers the periodic campaign tasks: a batch trigger
// every interval and a stale-call sweep at midnight, both evaluated in the
// campaign timezone.
func initializeScheduler(conf *config.Configuration) (*asynq.Scheduler, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		&asynq.SchedulerOpts{Location: conf.Campaign.Location()},
	)

	interval := conf.Campaign.IntervalMinutes
	if interval <= 0 || interval > 59 {
		interval = 10
	}
	trigger, err := json.Marshal(ringflow.BatchTriggerPayload{Source: "scheduler"})
	if err != nil {
		return nil, err
	}
	_, err = scheduler.Register(
		fmt.Sprintf("*/%d * * * *", interval),
		asynq.NewTask(ringflow.TaskBatchRun, trigger),
		asynq.Queue(conf.Queue.BatchQueue),
		asynq.Unique(time.Minute),
		asynq.MaxRetry(conf.Queue.MaxRetryAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("error registering batch trigger: %v", err)
	}

	_, err = scheduler.Register(
		"0 0 * * *",
		asynq.NewTask(ringflow.TaskRecoverStale, nil),
		asynq.Queue(conf.Queue.RecoveryQueue),
	)
	if err != nil {
		return nil, fmt.Errorf("error registering stale recovery: %v", err)
	}

	return scheduler, nil
}

// workerCommands defines the "workers" command to start worker processes.
// The workers listen to the batch, webhook, index and recovery queues, and the
// embedded scheduler feeds the batch and recovery queues on their cron cadence.
func workerCommands(b *ringflowInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start ringflow workers", // Short description of the command
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			// Load configuration
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			// Initialize observability (tracing and PostHog)
			phClient, shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			if shutdown != nil {
				defer func() {
					if err := shutdown(ctx); err != nil {
						log.Printf("Error during shutdown: %v", err)
					}
				}()
			}
			if phClient != nil {
				defer phClient.Close()
			}

			// Initialize queues
			queues := initializeQueues()

			// Initialize worker server
			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			// Initialize task handlers
			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			// Initialize the cron scheduler
			scheduler, err := initializeScheduler(conf)
			if err != nil {
				log.Fatal(err)
			}

			// Start asynqmon server for health checks and monitoring
			redisOption, _ := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
			h := asynqmon.New(asynqmon.Options{
				RootPath: "/monitoring", //  Optional: if you want to serve asynqmon under a sub-path.
				RedisConnOpt: asynq.RedisClientOpt{
					Addr:      redisOption.Addr,
					Password:  redisOption.Password,
					DB:        redisOption.DB,
					TLSConfig: redisOption.TLSConfig,
				},
			})

			// Start asynqmon HTTP server in a new goroutine
			go func() {
				monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
				log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
				if err := http.ListenAndServe(monitoringAddr, h); err != nil {
					log.Fatalf("could not start asynqmon server: %v", err)
				}
			}()

			// Start the scheduler in a new goroutine
			go func() {
				if err := scheduler.Run(); err != nil {
					log.Fatalf("could not run scheduler: %v", err)
				}
			}()

			// Start worker server
			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
