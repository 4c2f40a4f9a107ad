package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

type stubConnection struct {
	*SQLExecutor
	target models.TargetDescriptor
}

func (s *stubConnection) ExtractSchema(context.Context) ([]models.SchemaTable, error) {
	return nil, nil
}
func (s *stubConnection) Ping(context.Context) error { return nil }
func (s *stubConnection) Dialect() Dialect           { return Dialect{Kind: "stub"} }
func (s *stubConnection) Close() error               { return nil }

func TestRegistryFactory(t *testing.T) {
	Register(AdapterRegistration{
		Info:    AdapterInfo{Type: "stub", DisplayName: "Stub"},
		Dialect: Dialect{Kind: "stub", Name: "Stub SQL"},
		Factory: func(ctx context.Context, target models.TargetDescriptor, connMgr *ConnectionManager) (Connection, error) {
			return &stubConnection{target: target}, nil
		},
	})
	t.Cleanup(func() {
		registryMu.Lock()
		delete(registry, "stub")
		registryMu.Unlock()
	})

	cm := NewConnectionManager(ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()
	factory := NewAdapterFactory(cm)

	conn, err := factory.Open(context.Background(), models.TargetDescriptor{ID: "x", Kind: "stub"})
	require.NoError(t, err)
	assert.Equal(t, "x", conn.(*stubConnection).target.ID)

	assert.True(t, IsRegistered("stub"))
	d, ok := GetDialect("stub")
	require.True(t, ok)
	assert.Equal(t, "Stub SQL", d.Name)

	var found bool
	for _, info := range factory.ListTypes() {
		found = found || info.Type == "stub"
	}
	assert.True(t, found)

	_, err = factory.Open(context.Background(), models.TargetDescriptor{ID: "y", Kind: "oracle"})
	assert.ErrorContains(t, err, "unsupported datasource type")
}

func TestDialectWrapLimit(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		want    string
	}{
		{"limit clause", Dialect{LimitStyle: LimitClause}, "SELECT * FROM (\nSELECT 1 -- c\n) AS _limited LIMIT 10"},
		{"top", Dialect{LimitStyle: LimitTop}, "SELECT TOP (10) * FROM (\nSELECT 1 -- c\n) AS _limited"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.WrapLimit("SELECT 1 -- c", 10))
		})
	}
}

func TestGroupColumnsAndSort(t *testing.T) {
	tables := GroupColumns([]ColumnRow{
		{SchemaName: "sales", TableName: "orders", ColumnName: "id", DataType: "int", IsPrimaryKey: true},
		{SchemaName: "sales", TableName: "orders", ColumnName: "total", DataType: "numeric"},
		{SchemaName: "public", TableName: "users", ColumnName: "id", DataType: "int"},
	})
	SortTables(tables)

	require.Len(t, tables, 2)
	assert.Equal(t, "public.users", tables[0].QualifiedName())
	assert.Equal(t, "sales.orders", tables[1].QualifiedName())
	assert.Equal(t, []string{"id", "total"}, []string{tables[1].Columns[0].ColumnName, tables[1].Columns[1].ColumnName})
}

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "abc", NormalizeValue([]byte("abc")))
	assert.Equal(t, int64(1), NormalizeValue(int64(1)))
	assert.Nil(t, NormalizeValue(nil))
}
