// Package jobs defines the background jobs of IndexNow Studio: payload
// schemas, the workers that process them, the repeatable sweeps and the
// bootstrap that wires them onto a queue registry.
//
// Queues and their workers:
//
//	rank-check          refresh a keyword position (5 concurrent, 28 per minute)
//	email               send a templated email (10 concurrent, 50 per minute)
//	payment-webhook     reconcile a gateway notification with its transaction
//	auto-cancel         hourly, cancel orders pending for more than 24 hours
//	keyword-enrichment  half past every hour, fill keyword metadata
//	quota-reset         5 past every hour and every 15 minutes around midnight
//
// WORKER_MODE selects what a process runs: none only enqueues, inline runs
// the workers, all also registers the sweeps and runs the scheduler.
package jobs
