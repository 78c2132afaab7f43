package bitcask

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/suite"
)

type storeTestSuite struct {
	suite.Suite

	fs    FileSystem
	store *Store
}

func (su *storeTestSuite) SetupTest() {
	su.fs = afero.NewMemMapFs()

	store, err := Open("/store", WithFileSystem(su.fs))
	su.Require().NoError(err)

	su.store = store
}

func (su *storeTestSuite) TearDownTest() {
	su.Require().NoError(su.store.Close())
}

func TestStore(t *testing.T) {
	suite.Run(t, new(storeTestSuite))
}

func (su *storeTestSuite) TestOpenCreatesInitialDatafile() {
	exists, err := afero.Exists(su.fs, dataFilePath("/store", 0))
	su.Require().NoError(err)
	su.True(exists)
}

func (su *storeTestSuite) TestPutGetRoundTrip() {
	inserted, err := su.store.Put([]byte("hello"), []byte("world"))
	su.Require().NoError(err)
	su.True(inserted)

	value, err := su.store.Get([]byte("hello"))
	su.Require().NoError(err)
	su.Equal([]byte("world"), value)
}

func (su *storeTestSuite) TestGetMissingKey() {
	_, err := su.store.Get([]byte("nope"))
	su.ErrorIs(err, ErrKeyNotFound)
}

func (su *storeTestSuite) TestPutReturnsFalseOnUpdate() {
	inserted, err := su.store.Put([]byte("k"), []byte("v1"))
	su.Require().NoError(err)
	su.True(inserted)

	inserted, err = su.store.Put([]byte("k"), []byte("v2"))
	su.Require().NoError(err)
	su.False(inserted)

	value, err := su.store.Get([]byte("k"))
	su.Require().NoError(err)
	su.Equal([]byte("v2"), value)
}

func (su *storeTestSuite) TestDeleteRemovesKey() {
	_, err := su.store.Put([]byte("k"), []byte("v"))
	su.Require().NoError(err)

	existed, err := su.store.Delete([]byte("k"))
	su.Require().NoError(err)
	su.True(existed)

	_, err = su.store.Get([]byte("k"))
	su.ErrorIs(err, ErrKeyNotFound)

	existed, err = su.store.Delete([]byte("k"))
	su.Require().NoError(err)
	su.False(existed)
}

func (su *storeTestSuite) TestClear() {
	_, err := su.store.Put([]byte("k"), []byte("v"))
	su.Require().NoError(err)

	su.Require().NoError(su.store.Clear())
	su.True(su.store.Empty())

	_, err = su.store.Get([]byte("k"))
	su.ErrorIs(err, ErrKeyNotFound)
}

func (su *storeTestSuite) TestTraverseVisitsEveryKey() {
	want := map[string]string{
		"a": "1",
		"b": "2",
		"c": "3",
	}

	for k, v := range want {
		_, err := su.store.Put([]byte(k), []byte(v))
		su.Require().NoError(err)
	}

	got := map[string]string{}
	complete := su.store.Traverse(func(key, value []byte) bool {
		got[string(key)] = string(value)
		return true
	})

	su.True(complete)
	su.Equal(want, got)
}

func (su *storeTestSuite) TestTraverseEarlyStop() {
	for i := 0; i < 5; i++ {
		_, err := su.store.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))
		su.Require().NoError(err)
	}

	seen := 0
	complete := su.store.Traverse(func(key, value []byte) bool {
		seen++
		return seen < 2
	})

	su.False(complete)
	su.Equal(2, seen)
}

func (su *storeTestSuite) TestRolloverAndReopenRecoversEveryKey() {
	su.store.SetMaxFileSize(256)

	total := 200
	for i := 0; i < total; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		value := []byte(fmt.Sprintf("value-%04d", i))
		_, err := su.store.Put(key, value)
		su.Require().NoError(err)
	}

	ids, err := listDataFileIDs(su.fs, "/store")
	su.Require().NoError(err)
	su.Greater(len(ids), 1, "rollover should have produced more than one datafile")

	su.Require().NoError(su.store.Close())

	reopened, err := Open("/store", WithFileSystem(su.fs))
	su.Require().NoError(err)
	defer func() { su.Require().NoError(reopened.Close()) }()

	su.Equal(total, reopened.Len())

	for i := 0; i < total; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		want := []byte(fmt.Sprintf("value-%04d", i))

		got, err := reopened.Get(key)
		su.Require().NoError(err)
		su.Equal(want, got)
	}

	// Swap the reopened store in for TearDownTest to close, avoiding a
	// double Close of su.store.
	su.store = reopened
}

func (su *storeTestSuite) TestMergePreservesLatestValueAndReclaimsOldFiles() {
	su.store.SetMaxFileSize(256)

	key := []byte("hot-key")

	var last []byte
	for i := 0; i < 50; i++ {
		last = []byte(fmt.Sprintf("value-%04d", i))
		_, err := su.store.Put(key, last)
		su.Require().NoError(err)
	}

	idsBefore, err := listDataFileIDs(su.fs, "/store")
	su.Require().NoError(err)
	su.Greater(len(idsBefore), 1)

	su.Require().NoError(su.store.Merge())

	value, err := su.store.Get(key)
	su.Require().NoError(err)
	su.Equal(last, value)

	idsAfter, err := listDataFileIDs(su.fs, "/store")
	su.Require().NoError(err)
	su.Less(len(idsAfter), len(idsBefore))

	su.Require().NoError(su.store.Close())

	reopened, err := Open("/store", WithFileSystem(su.fs))
	su.Require().NoError(err)
	defer func() { su.Require().NoError(reopened.Close()) }()

	value, err = reopened.Get(key)
	su.Require().NoError(err)
	su.Equal(last, value)

	su.store = reopened
}

func (su *storeTestSuite) TestOpenSameDirectoryTwiceFails() {
	_, err := Open("/store", WithFileSystem(su.fs))
	su.ErrorIs(err, ErrAlreadyLocked)
}

func (su *storeTestSuite) TestSync() {
	_, err := su.store.Put([]byte("k"), []byte("v"))
	su.Require().NoError(err)

	su.Require().NoError(su.store.Sync())
}
