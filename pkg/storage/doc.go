// Package storage provides the infrastructure connections: the local
// upload file store, the PostgreSQL connection manager and the redis
// client. Upload keys are opaque and always resolved inside the
// configured base directory.
package storage
