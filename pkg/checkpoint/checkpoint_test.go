package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func testToken(t *testing.T, data string) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(bson.M{"_data": data})
	require.NoError(t, err)
	return bson.Raw(raw)
}

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(filepath.Join(t.TempDir(), "checkpoint.json"), "people.persons")
	require.NoError(t, err)
	return store
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	token := testToken(t, "8263F0C60000000D2B042C0100296E5A1004")

	require.NoError(t, store.Save(ctx, token))

	loaded, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, token, loaded)
}

func TestFileStore_MissingFileIsStartFresh(t *testing.T) {
	store := newTestStore(t)

	token, ok, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, token)
}

func TestFileStore_CorruptFileIsFatal(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "not json", content: "{{{"},
		{name: "missing token", content: `{"stream_id":"people.persons"}`},
		{name: "bad token payload", content: `{"stream_id":"x","token":"not a document"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			require.NoError(t, os.WriteFile(store.Path(), []byte(tt.content), 0644))

			_, _, err := store.Load(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestFileStore_SaveOverwritesWholesale(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Save(ctx, testToken(t, "first")))
	require.NoError(t, store.Save(ctx, testToken(t, "second")))

	loaded, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, testToken(t, "second"), loaded)

	// No stray temporary file left behind.
	_, err = os.Stat(store.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_SaveEmptyToken(t *testing.T) {
	store := newTestStore(t)
	err := store.Save(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestNewFileStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "checkpoint.json")
	store, err := NewFileStore(path, "people.persons")
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), testToken(t, "x")))
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestNewFileStore_RequiresPath(t *testing.T) {
	_, err := NewFileStore("", "people.persons")
	assert.Error(t, err)
}
