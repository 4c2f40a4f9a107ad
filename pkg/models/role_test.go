package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_PermitsTable(t *testing.T) {
	tests := []struct {
		name   string
		tables []string
		schema string
		table  string
		want   bool
	}{
		{name: "no allow-list permits everything", tables: nil, table: "orders", want: true},
		{name: "empty allow-list permits nothing", tables: []string{}, table: "orders", want: false},
		{name: "unqualified entry matches unqualified reference", tables: []string{"orders"}, table: "ORDERS", want: true},
		{name: "unqualified entry does not match qualified reference", tables: []string{"orders"}, schema: "secret", table: "orders", want: false},
		{name: "qualified entry matches", tables: []string{"sales.orders"}, schema: "sales", table: "orders", want: true},
		{name: "qualified entry does not match other schema", tables: []string{"sales.orders"}, schema: "hr", table: "orders", want: false},
		{name: "schema wildcard", tables: []string{"sales.*"}, schema: "Sales", table: "regions", want: true},
		{name: "global wildcard", tables: []string{"*"}, schema: "hr", table: "salaries", want: true},
		{name: "not listed", tables: []string{"orders", "regions"}, table: "salaries", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role := Role{Name: "r", Tables: tt.tables}
			assert.Equal(t, tt.want, role.PermitsTable(tt.schema, tt.table))
		})
	}
}

func TestStatementKind_IsWrite(t *testing.T) {
	assert.False(t, KindSelect.IsWrite())
	assert.False(t, KindUnknown.IsWrite())
	for _, k := range []StatementKind{KindInsert, KindUpdate, KindDelete, KindMerge, KindDDL} {
		assert.True(t, k.IsWrite(), string(k))
	}
}
