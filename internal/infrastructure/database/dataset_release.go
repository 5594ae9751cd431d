//go:build !debug

package database

// DatasetID selects the data directory under the database root.
// Debug builds (-tags debug) use a separate directory so they never touch release data.
const DatasetID = "data.r1"
