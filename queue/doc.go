// Package queue runs sync jobs through their lifecycle: creation, claiming,
// execution with retry classification, cancellation and purging.
//
// The Engine is backed by a core.JobStore. Claims are atomic in every store
// implementation, so several engines or a WorkerPool may share one store.
package queue
