package kind5

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattn/crystal-nostr-relay/lib/stores/memory"
	"github.com/mattn/crystal-nostr-relay/testing/helpers"
)

func setupStore(t *testing.T) *memory.MemoryStore {
	t.Helper()
	store := &memory.MemoryStore{}
	require.NoError(t, store.InitStore(""))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestProcessDeletion_AuthorOnly(t *testing.T) {
	store := setupStore(t)
	author, err := helpers.GenerateKeyPair()
	require.NoError(t, err)
	stranger, err := helpers.GenerateKeyPair()
	require.NoError(t, err)

	target, err := helpers.TextNote(author, "deletable")
	require.NoError(t, err)
	require.NoError(t, store.StoreEvent(target))

	foreign, err := helpers.Deletion(stranger, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, ProcessDeletion(store, foreign), "stranger deletes nothing")

	got, err := store.GetEvent(target.ID)
	require.NoError(t, err)
	assert.NotNil(t, got, "target survives unauthorized request")

	own, err := helpers.Deletion(author, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, ProcessDeletion(store, own))

	got, err = store.GetEvent(target.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "author request removes the target")
}

func TestProcessDeletion_GiftWrapRecipients(t *testing.T) {
	store := setupStore(t)
	wrapper, _ := helpers.GenerateKeyPair()
	recipient, _ := helpers.GenerateKeyPair()
	outsider, _ := helpers.GenerateKeyPair()

	wrap, err := helpers.GiftWrap(wrapper, recipient.PublicKey)
	require.NoError(t, err)
	require.NoError(t, store.StoreEvent(wrap))

	foreign, _ := helpers.Deletion(outsider, wrap.ID)
	assert.Equal(t, 0, ProcessDeletion(store, foreign), "non-recipient deletes nothing")

	own, _ := helpers.Deletion(recipient, wrap.ID)
	assert.Equal(t, 1, ProcessDeletion(store, own), "tagged recipient may delete")

	got, err := store.GetEvent(wrap.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProcessDeletion_SkipsAbsentTargets(t *testing.T) {
	store := setupStore(t)
	kp, _ := helpers.GenerateKeyPair()

	request, err := helpers.Deletion(kp,
		"1111111111111111111111111111111111111111111111111111111111111111",
		"2222222222222222222222222222222222222222222222222222222222222222")
	require.NoError(t, err)

	assert.Equal(t, 0, ProcessDeletion(store, request))
}

func TestProcessDeletion_MixedTargets(t *testing.T) {
	store := setupStore(t)
	author, _ := helpers.GenerateKeyPair()
	other, _ := helpers.GenerateKeyPair()

	mine, _ := helpers.TextNote(author, "mine")
	theirs, _ := helpers.TextNote(other, "theirs")
	require.NoError(t, store.StoreEvent(mine))
	require.NoError(t, store.StoreEvent(theirs))

	request, _ := helpers.Deletion(author, mine.ID, theirs.ID)
	assert.Equal(t, 1, ProcessDeletion(store, request), "only the author's own event goes")

	got, _ := store.GetEvent(mine.ID)
	assert.Nil(t, got)
	got, _ = store.GetEvent(theirs.ID)
	assert.NotNil(t, got)
}
