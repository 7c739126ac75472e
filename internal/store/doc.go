// Package store defines the persistence interfaces and sentinel errors
// shared by the service and task layers, keeping them independent of
// the PostgreSQL implementation under platform/postgres.
package store
