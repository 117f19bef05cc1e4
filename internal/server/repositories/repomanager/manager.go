package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/folioguard/internal/dbx"
	"github.com/dmitrijs2005/folioguard/internal/server/repositories/securityevents"
	"github.com/dmitrijs2005/folioguard/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/folioguard/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	SecurityEvents(db dbx.DBTX) securityevents.Repository
}
