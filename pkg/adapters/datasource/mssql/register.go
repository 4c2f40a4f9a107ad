package mssql

import (
	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        models.TargetKindMSSQL,
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2016+ and Azure SQL Database",
		},
		Dialect: Dialect,
		Factory: Open,
	})
}
