package duckdb

import (
	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.TargetKindDuckDB,
			DisplayName: "DuckDB",
			Description: "Query a local DuckDB database file",
		},
		Dialect: Dialect,
		Factory: Open,
	})
}
