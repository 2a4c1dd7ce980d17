// Package integration contains the Shopify synchronization bounded context.
// It reconciles the local record store with a remote commerce store in both
// directions.
//
// Key concepts:
//   - SyncInstance: one configured connection to a remote store
//   - CrossReference: keyed local id ⇄ remote id link with the last agreed field baseline
//   - SyncJob: one import, export or incremental pass
//   - SyncLogEntry: append-only per-record outcome of a job
//   - WebhookEvent: inbound notification with its receive/validate/enqueue/process lifecycle
//
// Design Pattern: Ports & Adapters
//   - Ports (RemoteStore, LocalStore, repositories, KeyedLocker) are defined here
//   - Adapters (Shopify client, gorm repositories, lockers) are in the infrastructure layer
package integration
