package postgres

import (
	"context"

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.TargetKindPostgres,
			DisplayName: "PostgreSQL",
			Description: "Connect to PostgreSQL 12+, Aurora PostgreSQL, Supabase",
		},
		Dialect: Dialect,
		Factory: func(ctx context.Context, target models.TargetDescriptor, connMgr *datasource.ConnectionManager) (datasource.Connection, error) {
			return Open(ctx, target, connMgr)
		},
	})
}
