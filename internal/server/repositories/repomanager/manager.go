// Package repomanager wires repository constructors to a database handle and
// exposes the schema-migration hook.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/ekurs/phrasevault/internal/dbx"
	"github.com/ekurs/phrasevault/internal/server/repositories/entries"
	"github.com/ekurs/phrasevault/internal/server/repositories/tags"
)

// RepositoryManager vends repositories bound to a DBTX, so services can use
// the same constructors inside and outside a transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Tags(db dbx.DBTX) tags.Repository
	Entries(db dbx.DBTX) entries.Repository
}
