package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aquadoggo-go/aquadoggo/internal/store/postgres"
	"github.com/aquadoggo-go/aquadoggo/internal/types"
)

// startPostgres boots a disposable PostgreSQL container and returns a
// database_url pointed at it, using testcontainers-go's GenericContainer
// for an ephemeral integration database.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:17",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "aquadoggo",
			"POSTGRES_PASSWORD": "aquadoggo",
			"POSTGRES_DB":       "aquadoggo",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://aquadoggo:aquadoggo@%s:%s/aquadoggo?sslmode=disable", host, port.Port())
}

func TestPostgresOpenAppliesMigrationsAndRoundTripsALog(t *testing.T) {
	databaseURL := startPostgres(t)
	ctx := context.Background()

	s, err := postgres.Open(ctx, databaseURL, 4, t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var pk types.PublicKey
	copy(pk[:], []byte("postgres-integration-author-32b"))

	logID, err := s.EnsureLog(ctx, pk, types.DocumentID("doc-pg-1"), types.SchemaID("note_v1"))
	require.NoError(t, err)
	assert.Equal(t, types.LogID(0), logID)

	again, err := s.EnsureLog(ctx, pk, types.DocumentID("doc-pg-1"), types.SchemaID("note_v1"))
	require.NoError(t, err)
	assert.Equal(t, logID, again, "re-querying the same (author, document) pair must return the same log_id")

	got, err := s.GetLog(ctx, pk, logID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.DocumentID("doc-pg-1"), got.DocumentID)
}
