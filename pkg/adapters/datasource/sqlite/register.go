package sqlite

import (
	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.TargetKindSQLite,
			DisplayName: "SQLite",
			Description: "Query a local SQLite database file",
		},
		Dialect: Dialect,
		Factory: Open,
	})
}
