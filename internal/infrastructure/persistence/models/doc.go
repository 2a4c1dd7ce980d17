// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: BaseModel with the identity and timestamp columns
// - sync.go: sync bookkeeping (instances, cross-references, jobs, the sync
//   log, webhook events and subscriptions)
// - local.go: the host system's business records the sync engine reads and
//   writes through the local store adapter
package models
