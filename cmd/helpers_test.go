package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/judgment-cli/internal/model"
	"github.com/sells-group/judgment-cli/internal/recordio"
	"github.com/sells-group/judgment-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func writeRecords(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func readRecords(t *testing.T, path string) []model.CaseRecord {
	t.Helper()
	recs, err := recordio.New(nil).Read(context.Background(), path)
	require.NoError(t, err)
	return recs
}
