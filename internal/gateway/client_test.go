package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xelth-com/modspace/internal/gateway/gatewaytest"
)

func newTestClient(t *testing.T, srv *gatewaytest.Server, nonce string) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL: srv.URL, // no trailing slash on purpose
		Nonce:   nonce,
		Timeout: 2 * time.Second,
	}, zaptest.NewLogger(t))
}

func TestClient_GetSave(t *testing.T) {
	srv := gatewaytest.New("n0nce")
	defer srv.Close()
	c := newTestClient(t, srv, "n0nce")
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, "tasks", []byte(`{"a": 1}`)))
	assert.Equal(t, "n0nce", srv.LastNonce())

	doc, err := c.Get(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(doc), "documents come back compacted")

	pushes := srv.PushesFor("tasks")
	require.Len(t, pushes, 1)
	assert.JSONEq(t, `{"a":1}`, pushes[0].Data)
}

func TestClient_GetNotFound(t *testing.T) {
	srv := gatewaytest.New("")
	defer srv.Close()
	c := newTestClient(t, srv, "")

	_, err := c.Get(context.Background(), "notes")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClient_StatusError(t *testing.T) {
	srv := gatewaytest.New("")
	defer srv.Close()
	c := newTestClient(t, srv, "")
	srv.FailSaves("tasks", true)

	err := c.Save(context.Background(), "tasks", []byte(`{}`))
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 500, se.Code)
}

func TestClient_BadNonceIsRejected(t *testing.T) {
	srv := gatewaytest.New("expected")
	defer srv.Close()
	c := newTestClient(t, srv, "wrong")

	var se *StatusError
	err := c.Save(context.Background(), "tasks", []byte(`{}`))
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 403, se.Code)
}

func TestClient_DeleteAll(t *testing.T) {
	srv := gatewaytest.New("")
	defer srv.Close()
	c := newTestClient(t, srv, "")
	srv.Put("tasks", `{}`)
	srv.Put("notes", `{}`)

	res, err := c.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)

	_, ok := srv.Doc("tasks")
	assert.False(t, ok)
}

func TestClient_PingUnreachable(t *testing.T) {
	srv := gatewaytest.New("")
	c := newTestClient(t, srv, "")
	require.NoError(t, c.Ping(context.Background()))

	srv.Close()
	assert.Error(t, c.Ping(context.Background()))
}

func TestClient_ModuleIDIsOnePathSegment(t *testing.T) {
	srv := gatewaytest.New("")
	defer srv.Close()
	c := newTestClient(t, srv, "")
	ctx := context.Background()

	ids := []string{"a/b", "what?x=1", "frag#ment", "with space"}
	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			require.NoError(t, c.Save(ctx, id, []byte(`{"id":1}`)))
			require.Len(t, srv.PushesFor(id), 1)

			stored, ok := srv.Doc(id)
			require.True(t, ok)
			assert.JSONEq(t, `{"id":1}`, stored)

			doc, err := c.Get(ctx, id)
			require.NoError(t, err)
			assert.JSONEq(t, `{"id":1}`, string(doc))
		})
	}
	assert.Equal(t, ids, pushIDs(srv.Pushes()))
}

func pushIDs(pushes []gatewaytest.Push) []string {
	out := make([]string, 0, len(pushes))
	for _, p := range pushes {
		out = append(out, p.ModuleID)
	}
	return out
}
