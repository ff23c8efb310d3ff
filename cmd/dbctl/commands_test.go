package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uwececa/dblayer/internal/config"
	"github.com/uwececa/dblayer/internal/database"
	"github.com/uwececa/dblayer/internal/sqlerr"
)

func TestVersionCmd(t *testing.T) {
	t.Run("Should print the build id", func(t *testing.T) {
		var out bytes.Buffer
		root := RootCmd()
		root.SetOut(&out)
		root.SetArgs([]string{"version"})

		require.NoError(t, root.Execute())
		assert.Equal(t, config.BuildID()+"\n", out.String())
	})
}

func TestRootCmd(t *testing.T) {
	t.Run("Should register the sessions prune command", func(t *testing.T) {
		cmd, args, err := RootCmd().Find([]string{"sessions", "prune"})
		require.NoError(t, err)
		assert.Empty(t, args)
		assert.Equal(t, "prune", cmd.Name())
		assert.Equal(t, "sessions", cmd.Parent().Name())
		assert.NotNil(t, cmd.RunE)
	})

	t.Run("Should inherit the wait flag", func(t *testing.T) {
		cmd, _, err := RootCmd().Find([]string{"sessions", "prune"})
		require.NoError(t, err)
		assert.NotNil(t, cmd.InheritedFlags().Lookup("wait"))
	})
}

func TestPrintApplied(t *testing.T) {
	applied := []database.AppliedMigration{{
		Version:   1,
		Name:      "001_create_users.sql",
		Checksum:  "0123456789abcdef0123456789abcdef",
		AppliedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}

	t.Run("Should print a table with short checksums", func(t *testing.T) {
		var out bytes.Buffer
		cmd := StatusCmd()
		cmd.SetOut(&out)

		require.NoError(t, printApplied(cmd, applied, false))
		assert.Contains(t, out.String(), "VERSION")
		assert.Contains(t, out.String(), "001_create_users.sql")
		assert.Contains(t, out.String(), "2026-03-01T12:00:00Z")
		assert.Contains(t, out.String(), "0123456789ab\n")
	})

	t.Run("Should print JSON", func(t *testing.T) {
		var out bytes.Buffer
		cmd := StatusCmd()
		cmd.SetOut(&out)

		require.NoError(t, printApplied(cmd, applied, true))
		assert.Contains(t, out.String(), `"Name": "001_create_users.sql"`)
	})
}

func TestWithWait(t *testing.T) {
	unreachable := sqlerr.Classify(errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"))

	t.Run("Should run once without a wait", func(t *testing.T) {
		calls := 0
		err := withWait(context.Background(), 0, func(context.Context) error {
			calls++
			return unreachable
		})
		assert.ErrorIs(t, err, sqlerr.ErrUnknown)
		assert.Equal(t, 1, calls)
	})

	t.Run("Should retry until the database is reachable", func(t *testing.T) {
		calls := 0
		err := withWait(context.Background(), 10*time.Second, func(context.Context) error {
			calls++
			if calls < 3 {
				return unreachable
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("Should not retry classified failures", func(t *testing.T) {
		calls := 0
		err := withWait(context.Background(), 10*time.Second, func(context.Context) error {
			calls++
			return sqlerr.FromMigration(errors.New("bad sql"))
		})
		assert.ErrorIs(t, err, sqlerr.ErrMigrate)
		assert.Equal(t, 1, calls)
	})

	t.Run("Should give up with the last failure", func(t *testing.T) {
		err := withWait(context.Background(), 300*time.Millisecond, func(context.Context) error {
			return unreachable
		})
		assert.ErrorIs(t, err, sqlerr.ErrUnknown)
		assert.ErrorContains(t, err, "gave up after")
	})
}
