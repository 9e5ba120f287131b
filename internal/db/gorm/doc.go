// Tables owned by the complaint backend (districts, complaints,
// complaint_normalizations) are read here and only the incident link columns
// of complaints are written. The incidents table is owned by this worker.
//
// # Testing
//
// Store tests run on in-memory SQLite:
//
//	go test ./internal/db/gorm
//
// The PostgreSQL migration test runs when DATABASE_DSN is set.
package gorm
