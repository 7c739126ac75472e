// Package postgres implements the persistence interfaces from
// internal/store and internal/task against PostgreSQL. It owns query
// construction, row scanning and the mapping of driver errors onto the
// store's sentinel errors.
package postgres
