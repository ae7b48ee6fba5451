package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gitwiki/internal/dbx"
	"github.com/dmitrijs2005/gitwiki/internal/server/repositories/sessions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Sessions(db dbx.DBTX) sessions.Repository
}
