// Package queue provides named durable task queues with workers, retries,
// a dead letter queue and cron-driven repeatable jobs.
//
// The package is organised around a few components that talk to storage only
// through small repository interfaces:
//
//   - Enqueuer adds tasks, optionally delayed or deduplicated by job ID
//   - Worker claims tasks of one or more queues and dispatches them to handlers
//   - Scheduler turns repeatable registrations into periodic tasks
//   - Registry wires one Worker per queue, the Scheduler and the Queue handles
//
// MemoryStorage backs tests and local runs; RedisStorage lets enqueuers,
// workers and schedulers in separate processes share the same queues.
//
// # Failures
//
// Attempts are counted when a task is claimed. A handler error is retried
// with exponential backoff until the attempt budget is used up, then the task
// moves to the dead letter queue. Errors wrapped with Permanent (payload decode
// and validation failures among them) skip the retries.
//
// # Usage
//
//	storage, _ := queue.NewRedisStorage(client)
//	reg, _ := queue.NewRegistry(storage)
//
//	_, _ = reg.RegisterWorker("email", queue.NewTaskHandler(sendEmail),
//		queue.WithMaxConcurrentTasks(10))
//
//	_, _ = reg.GetQueue("email").Add(ctx, EmailPayload{To: "a@example.com"})
//
//	_, _ = reg.GetQueue("reports").EnsureRepeatable(ctx, queue.RepeatableJob{
//		Key:      "hourly-report",
//		TaskName: "report.hourly",
//		Pattern:  "0 * * * *",
//	})
//	reg.EnableScheduler()
//
//	err := reg.Run(ctx) // blocks until ctx is done
//
// Multi-step handlers can make their steps idempotent across retries with
// Step, or StepResult when a later step needs the value an earlier attempt
// produced. Sweeps that must not overlap can be wrapped with Exclusive; the
// lock lives no longer than the run's deadline.
package queue
