package postgres

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-ask/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

func TestBuildConnectionString(t *testing.T) {
	t.Setenv("TEST_PG_PASSWORD", "p@ss/w#rd?")

	target := models.TargetDescriptor{
		ID:          "warehouse",
		Kind:        models.TargetKindPostgres,
		Host:        "db.internal",
		Port:        5432,
		Database:    "analytics",
		User:        "reader",
		PasswordEnv: "TEST_PG_PASSWORD",
	}

	connStr := buildConnectionString(target)
	u, err := url.Parse(connStr)
	require.NoError(t, err)

	assert.Equal(t, "postgresql", u.Scheme)
	assert.Equal(t, "db.internal:5432", u.Host)
	assert.Equal(t, "/analytics", u.Path)
	assert.Equal(t, "reader", u.User.Username())
	password, _ := u.User.Password()
	assert.Equal(t, "p@ss/w#rd?", password)
	assert.Equal(t, DefaultSSLMode, u.Query().Get("sslmode"))

	target.SSLMode = "disable"
	target.Options = map[string]string{"application_name": "ekaya-ask"}
	u, err = url.Parse(buildConnectionString(target))
	require.NoError(t, err)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "ekaya-ask", u.Query().Get("application_name"))
}

func TestPgTypeNameFromOID(t *testing.T) {
	assert.Equal(t, "INT4", pgTypeNameFromOID(23))
	assert.Equal(t, "NUMERIC", pgTypeNameFromOID(1700))
	assert.Equal(t, "UNKNOWN", pgTypeNameFromOID(999999))
}

func TestRegistered(t *testing.T) {
	d, ok := datasource.GetDialect(models.TargetKindPostgres)
	require.True(t, ok)
	assert.Equal(t, "PostgreSQL", d.Name)
}
