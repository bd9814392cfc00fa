package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyRows_EmptyRows(t *testing.T) {
	n, err := CopyRows(context.TODO(), nil, "ssr", []string{"fid", "geom"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyRows(t *testing.T) {
	tests := []struct {
		name  string
		table string
		ident pgx.Identifier
	}{
		{"plain", "ssr", pgx.Identifier{"ssr"}},
		{"schema qualified", "e1.ssr", pgx.Identifier{"e1", "ssr"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectCopyFrom(tt.ident, []string{"fid", "geom"}).WillReturnResult(2)

			n, err := CopyRows(context.Background(), mock, tt.table, []string{"fid", "geom"}, [][]any{{1, nil}, {2, nil}})
			assert.NoError(t, err)
			assert.Equal(t, int64(2), n)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCopyRows_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"e1", "uf"}, []string{"fid"}).WillReturnError(fmt.Errorf("permission denied"))

	_, err = CopyRows(context.Background(), mock, "e1.uf", []string{"fid"}, [][]any{{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO e1.uf")
	assert.NoError(t, mock.ExpectationsWereMet())
}
