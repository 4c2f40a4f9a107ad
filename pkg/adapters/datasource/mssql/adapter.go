// Package mssql connects to Microsoft SQL Server targets.
package mssql

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/config"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// DefaultConnectionTimeout is the connection timeout in seconds.
const DefaultConnectionTimeout = 30

// Dialect is SQL Server's T-SQL flavor.
var Dialect = datasource.Dialect{
	Kind:         models.TargetKindMSSQL,
	Name:         "Microsoft SQL Server (T-SQL)",
	LimitStyle:   datasource.LimitTop,
	ConvertValue: convertValue,
}

// buildConnectionString creates a sqlserver:// URL using SQL authentication.
// Recognized options: encrypt, trust_server_certificate, connection_timeout, app_name.
func buildConnectionString(target models.TargetDescriptor) string {
	query := url.Values{}
	query.Add("database", target.Database)

	encrypt := "true"
	if v, ok := target.Options["encrypt"]; ok {
		encrypt = v
	}
	query.Add("encrypt", encrypt)

	if strings.EqualFold(target.Options["trust_server_certificate"], "true") {
		query.Add("TrustServerCertificate", "true")
	}

	timeout := fmt.Sprintf("%d", DefaultConnectionTimeout)
	if v, ok := target.Options["connection_timeout"]; ok {
		timeout = v
	}
	query.Add("connection timeout", timeout)

	if v, ok := target.Options["app_name"]; ok {
		query.Add("app name", v)
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(target.User),
		url.QueryEscape(target.Password()),
		config.ResolveHostForDocker(target.Host),
		target.Port,
		query.Encode(),
	)
}

// Open acquires the managed pool for target.
func Open(ctx context.Context, target models.TargetDescriptor, connMgr *datasource.ConnectionManager) (datasource.Connection, error) {
	return datasource.OpenDB(ctx, target, connMgr, "sqlserver", buildConnectionString(target), Dialect, extractSchema)
}

// convertValue renders UNIQUEIDENTIFIER bytes in SQL Server's canonical form.
func convertValue(dbType string, v any) any {
	b, ok := v.([]byte)
	if !ok || !strings.EqualFold(dbType, "UNIQUEIDENTIFIER") {
		return v
	}
	var id mssqldb.UniqueIdentifier
	if err := id.Scan(b); err != nil {
		return v
	}
	return id.String()
}
