package hst

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/pagecomposer/internal/pagestructure"
)

func newTestServer(t *testing.T) (*httptest.Server, *SQLStore) {
	t.Helper()
	store := newTestStore(t)
	seedXY(t, store)
	r := chi.NewRouter()
	NewHandler(store).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func TestClient_UpdateContainer(t *testing.T) {
	srv, store := newTestServer(t)
	client := NewClient(srv.URL, WithUser("admin"), WithChannel("website"))

	rep, err := client.UpdateContainer(context.Background(), "X", pagestructure.Representation{
		ID: "X", LastModified: 100, Children: []string{"c2", "c1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c1"}, rep.Children)
	assert.Greater(t, rep.LastModified, int64(100))

	stored, err := store.GetContainer(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, []string{"c2", "c1"}, stored.ChildIDs())
}

func TestClient_ErrorsMapToSentinels(t *testing.T) {
	srv, _ := newTestServer(t)
	client := NewClient(srv.URL+"/", WithUser("admin"))
	ctx := context.Background()

	_, err := client.UpdateContainer(ctx, "L", pagestructure.Representation{ID: "L", Children: []string{"c4"}})
	assert.ErrorIs(t, err, ErrLocked)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)

	_, err = client.UpdateContainer(ctx, "X", pagestructure.Representation{ID: "X", LastModified: 1})
	assert.ErrorIs(t, err, ErrStale)

	_, err = client.GetContainer(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.UpdateContainer(ctx, "X", pagestructure.Representation{ID: "Y"})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, codeInvalidID, apiErr.Code)
}

func TestHandler_InvalidBody(t *testing.T) {
	srv, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/_rp/X", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandler_PreviewAndPages(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/preview/p")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	page, err := pagestructure.ParseHTML(strings.NewReader(string(body)))
	require.NoError(t, err)
	assert.Len(t, page.Containers(), 3)

	resp, err = http.Get(srv.URL + "/preview/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/pages")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.JSONEq(t, `[{"id":"p","title":"Page","channelId":"website"}]`, string(body))
}

func TestLocalPersister(t *testing.T) {
	store := newTestStore(t)
	seedXY(t, store)

	rep, err := LocalPersister{Store: store, User: "admin"}.UpdateContainer(context.Background(), "Y", pagestructure.Representation{
		Children: []string{"c3", "c2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Y", rep.ID)
	assert.Equal(t, []string{"c3", "c2"}, rep.Children)
}
