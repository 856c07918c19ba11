package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"cellule-dashboard/cellule"
	"cellule-dashboard/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *cellule.CellManager {
	t.Helper()
	mgr, err := cellule.NewCellManager(filepath.Join(t.TempDir(), "cell.db"), logger.NewWithOutput("error", io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestImportMembers(t *testing.T) {
	mgr := newManager(t)
	ctx := context.Background()
	input := strings.Join([]string{
		"Name,Phone,Email,Role",
		"Alice,555-0101,alice@example.org,Leader",
		"Bob,,,",
		",555-0000,,Member",
		"Carl,,,Bishop",
		`"Doe, Jane",,,Youth`,
	}, "\n")

	var out bytes.Buffer
	ok, failed, err := importMembers(ctx, mgr, strings.NewReader(input), &out)
	require.NoError(t, err)
	assert.Equal(t, 3, ok)
	assert.Equal(t, 2, failed)
	assert.Contains(t, out.String(), "line 4: ERROR")
	assert.Contains(t, out.String(), "line 5: ERROR")

	members, err := mgr.Members(ctx)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "alice@example.org", members[0].Email)
	assert.Equal(t, cellule.RoleMember, members[1].Role)
	assert.Equal(t, "Doe, Jane", members[2].Name)
}

func TestImportMembersNameOnlyHeader(t *testing.T) {
	mgr := newManager(t)
	ok, failed, err := importMembers(context.Background(), mgr, strings.NewReader("name\nAlice\nBob\n"), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 2, ok)
	assert.Zero(t, failed)
}

func TestImportMembersBadInput(t *testing.T) {
	mgr := newManager(t)

	_, _, err := importMembers(context.Background(), mgr, strings.NewReader("phone,email\n555,a@b\n"), io.Discard)
	assert.ErrorContains(t, err, "missing name column")

	ok, failed, err := importMembers(context.Background(), mgr, strings.NewReader(""), io.Discard)
	require.NoError(t, err)
	assert.Zero(t, ok+failed)

	_, _, err = importMembers(context.Background(), mgr, strings.NewReader("name\n\"unterminated\n"), io.Discard)
	assert.Error(t, err)
}
