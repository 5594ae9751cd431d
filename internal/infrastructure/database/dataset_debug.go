//go:build debug

package database

// DatasetID selects the data directory under the database root.
const DatasetID = "data.d1"
