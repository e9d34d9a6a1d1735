package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct{ admins []Admin }

func (m *memRepo) LoadAll() ([]Admin, error) { return append([]Admin{}, m.admins...), nil }
func (m *memRepo) Upsert(a Admin) error {
	for i, x := range m.admins {
		if x.ID == a.ID {
			m.admins[i] = a
			return nil
		}
	}
	m.admins = append(m.admins, a)
	return nil
}
func (m *memRepo) Remove(id string) error {
	out := make([]Admin, 0, len(m.admins))
	for _, x := range m.admins {
		if x.ID != id {
			out = append(out, x)
		}
	}
	m.admins = out
	return nil
}

func TestServiceBasic(t *testing.T) {
	repo := &memRepo{admins: []Admin{{ID: "10", Name: "alice"}}}
	svc, err := NewWithRepo(repo, []string{"20", ""})
	require.NoError(t, err)

	assert.True(t, svc.IsAllowed("10"), "repo preload")
	assert.True(t, svc.IsAllowed("20"), "env ids merged")
	assert.False(t, svc.IsAllowed("30"))
	assert.False(t, svc.IsAllowed(""))

	require.NoError(t, svc.Upsert(Admin{ID: "30", Name: "bob"}))
	assert.True(t, svc.IsAllowed("30"))

	require.NoError(t, svc.Remove("10"))
	assert.False(t, svc.IsAllowed("10"))

	assert.Equal(t, []Admin{{ID: "20"}, {ID: "30", Name: "bob"}}, svc.List())
	assert.Len(t, repo.admins, 1)
}

func TestServiceWithoutRepo(t *testing.T) {
	svc, err := NewWithRepo(nil, []string{"1"})
	require.NoError(t, err)
	assert.True(t, svc.IsAllowed("1"))
	require.NoError(t, svc.Upsert(Admin{ID: "2"}))
	assert.True(t, svc.IsAllowed("2"))
}

func TestFileRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "admins.json")
	repo, err := NewFileRepository(path)
	require.NoError(t, err)

	admins, err := repo.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, admins)

	require.NoError(t, repo.Upsert(Admin{ID: "a"}))
	require.NoError(t, repo.Upsert(Admin{ID: "b", Name: "bee"}))
	require.NoError(t, repo.Upsert(Admin{ID: "a", Name: "ay"}))
	require.NoError(t, repo.Remove("b"))

	reopened, err := NewFileRepository(path)
	require.NoError(t, err)
	admins, err = reopened.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, []Admin{{ID: "a", Name: "ay"}}, admins)
}

func TestFileRepository_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "admins.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))
	repo, err := NewFileRepository(path)
	require.NoError(t, err)
	_, err = repo.LoadAll()
	assert.Error(t, err)
}
