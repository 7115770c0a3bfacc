package encapsia

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemUserEmail(t *testing.T) {
	assert.Equal(t, "system@a-description.encapsia.com", SystemUserEmail("A description"))
	assert.Equal(t, "system@a-b.encapsia.com", SystemUserEmail("a b"))
}

func TestSystemUserRoleName(t *testing.T) {
	assert.Equal(t, "System - A description", SystemUserRoleName("A description"))
	assert.Equal(t, "System - Foo", SystemUserRoleName("foo"))
}

// systemUserFixture serves a users/roles listing holding one system user
// with capabilities a and b, and records role/user creation POSTs.
func systemUserFixture(t *testing.T, posts *atomic.Int32) *Client {
	t.Helper()
	return newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
			writeResult(w, nil)
			return
		}
		switch r.URL.Path {
		case "/v1/users":
			writeResult(w, map[string]any{
				"users": []map[string]any{{
					"email":      "system@a-description.encapsia.com",
					"first_name": "System",
					"last_name":  "A description",
					"role":       "System - A description",
					"enabled":    true,
				}},
			})
		case "/v1/roles":
			writeResult(w, map[string]any{
				"roles": []map[string]any{{
					"name":         "System - A description",
					"alias":        "System - A description",
					"capabilities": []string{"a", "b"},
				}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestAddSystemUser(t *testing.T) {
	t.Run("matching user left alone", func(t *testing.T) {
		var posts atomic.Int32
		client := systemUserFixture(t, &posts)

		err := client.AddSystemUser(context.Background(), "a description", []string{"a", "b"}, false)
		require.NoError(t, err)
		assert.Equal(t, int32(0), posts.Load())
	})

	t.Run("different capabilities recreated", func(t *testing.T) {
		var posts atomic.Int32
		client := systemUserFixture(t, &posts)

		err := client.AddSystemUser(context.Background(), "a description", []string{"a", "c"}, false)
		require.NoError(t, err)
		assert.Equal(t, int32(2), posts.Load())
	})

	t.Run("force always recreates", func(t *testing.T) {
		var posts atomic.Int32
		client := systemUserFixture(t, &posts)

		err := client.AddSystemUser(context.Background(), "a description", []string{"a", "b"}, true)
		require.NoError(t, err)
		assert.Equal(t, int32(2), posts.Load())
	})
}

func TestSystemUsers(t *testing.T) {
	var posts atomic.Int32
	client := systemUserFixture(t, &posts)

	users, err := client.SystemUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, SystemUser{
		Email:        "system@a-description.encapsia.com",
		Description:  "A description",
		Capabilities: []string{"a", "b"},
	}, users[0])
}

func TestSystemUserByDescription(t *testing.T) {
	var posts atomic.Int32
	client := systemUserFixture(t, &posts)

	user, err := client.SystemUserByDescription(context.Background(), "a description")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "system@a-description.encapsia.com", user.Email)

	missing, err := client.SystemUserByDescription(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSuperUsers(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, map[string]any{
			"users": []map[string]any{
				{
					"email":      "root@example.com",
					"first_name": "Root",
					"last_name":  "User",
					"role":       "Superuser",
				},
				{
					"email":      "plain@example.com",
					"first_name": "Plain",
					"last_name":  "User",
					"role":       "Editor",
				},
			},
		})
	}))

	users, err := client.SuperUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "root@example.com", users[0].Email)
}
