// Package queue is the execution backend: it carries admitted tasks from
// the orchestrator to the workers through asynq on Redis.
//
// The Client side implements task.Dispatcher. Each task is enqueued at most
// once: the asynq task ID is the task's ID, and jobs are never retried, so a
// task that was debited once is executed at most once. The Server side
// drains the queue and hands each job to a JobHandler, normally a
// task.Worker.
package queue
