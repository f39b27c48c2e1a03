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

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.Background(), nil, "places", []string{"id", "name"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"places"}, []string{"id", "name"}).WillReturnResult(3)

	rows := [][]any{
		{"el-yunque", "El Yunque National Forest"},
		{"castillo-san-felipe", "Castillo San Felipe del Morro"},
		{"cueva-ventana", "Cueva Ventana"},
	}
	n, err := CopyFrom(context.Background(), mock, "places", []string{"id", "name"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"places"}, []string{"id", "name"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"el-yunque", "El Yunque National Forest"}}
	_, err = CopyFrom(context.Background(), mock, "places", []string{"id", "name"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO places")
	assert.NoError(t, mock.ExpectationsWereMet())
}
