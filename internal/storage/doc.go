// Package storage defines the persistence contract for cutscenes.
//
// Backends live in subpackages: sqlite, mysql and postgres share the sqlstore
// implementation; redis and bbolt share the kv key layout; mongo stores one
// document per cutscene; legacy reads and writes the flat YAML files used
// before a database was configured. factory picks a backend from config and
// bootstrap loads everything into the registry at startup.
//
// # Error Types
//
// Backends return *errors.Error values with storage codes:
//   - STORAGE_UNAVAILABLE: the backend could not be reached or initialized.
//   - STORAGE_TRANSACTION: a write failed and was rolled back where possible.
//   - STORAGE_MALFORMED: a stored record could not be decoded.
package storage
