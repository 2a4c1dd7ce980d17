// Package lock provides integration.KeyedLocker implementations used to
// serialize sync passes per (instance, entity type).
//
// LocalLocker serializes goroutines inside one process. RedisLocker uses
// bsm/redislock so that several nodes share the same critical sections.
package lock
