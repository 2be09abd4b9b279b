package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/agentcp/internal/app/domain/app"
	"github.com/r3e-network/agentcp/internal/app/domain/function"
	"github.com/r3e-network/agentcp/internal/app/domain/project"
	"github.com/r3e-network/agentcp/internal/app/storage"
)

func TestProjectCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	p, err := s.CreateProject(ctx, project.Project{ID: "p1", OrgID: "org1", Name: "demo"})
	require.NoError(t, err)
	require.Equal(t, "p1", p.ID)

	_, err = s.CreateProject(ctx, project.Project{ID: "p1"})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)

	got, err := s.GetProject(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "demo", got.Name)

	got.Name = "renamed"
	require.NoError(t, s.UpdateProject(ctx, got))

	got2, err := s.GetProject(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "renamed", got2.Name)

	count, err := s.CountProjectsByOrg(ctx, "org1")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	require.NoError(t, s.DeleteProject(ctx, "p1"))
	_, err = s.GetProject(ctx, "p1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRenameAppRewritesFunctions(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.CreateApp(ctx, app.App{Name: "OLD_APP", Visibility: app.VisibilityPublic, Active: true})
	require.NoError(t, err)
	_, err = s.CreateFunction(ctx, function.Function{Name: "OLD_APP__LOOKUP", AppName: "OLD_APP"})
	require.NoError(t, err)

	require.NoError(t, s.RenameApp(ctx, "OLD_APP", "NEW_APP"))

	_, err = s.GetApp(ctx, "OLD_APP")
	require.ErrorIs(t, err, storage.ErrNotFound)

	renamed, err := s.GetApp(ctx, "NEW_APP")
	require.NoError(t, err)
	require.Equal(t, "NEW_APP", renamed.Name)

	_, err = s.GetFunction(ctx, "OLD_APP__LOOKUP")
	require.ErrorIs(t, err, storage.ErrNotFound)
	fn, err := s.GetFunction(ctx, "NEW_APP__LOOKUP")
	require.NoError(t, err)
	require.Equal(t, "NEW_APP", fn.AppName)
}

func TestSearchAppsRanksByCosineSimilarity(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.CreateApp(ctx, app.App{Name: "A", Visibility: app.VisibilityPublic, Active: true, Embedding: []float32{1, 0}})
	require.NoError(t, err)
	_, err = s.CreateApp(ctx, app.App{Name: "B", Visibility: app.VisibilityPublic, Active: true, Embedding: []float32{0, 1}})
	require.NoError(t, err)

	results, err := s.SearchApps(ctx, []float32{1, 0}, 10, true, true, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "A", results[0].Name)
}

func TestListAppsPagination(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, name := range []string{"A", "B", "C"} {
		_, err := s.CreateApp(ctx, app.App{Name: name, Visibility: app.VisibilityPublic, Active: true})
		require.NoError(t, err)
	}

	page, err := s.ListApps(ctx, storage.ListFilter{Offset: 1, Limit: 1}, true, true)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "B", page[0].Name)
}
