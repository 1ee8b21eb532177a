package cache

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/drivemirror/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo is an in-memory table keyed by pk and sk.
type fakeDynamo struct {
	mu       sync.Mutex
	items    map[string]map[string]types.AttributeValue
	pageSize int
	scans    int
	err      error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue), pageSize: 2}
}

func str(av types.AttributeValue) string {
	if s, ok := av.(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func tableKey(key map[string]types.AttributeValue) string {
	return str(key["pk"]) + "|" + str(key["sk"])
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[tableKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.items[tableKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	delete(f.items, tableKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.scans++

	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := ""
	if in.ExclusiveStartKey != nil {
		start = tableKey(in.ExclusiveStartKey)
	}
	zone := str(in.ExpressionAttributeValues[":zone"])
	owner := str(in.ExpressionAttributeValues[":owner"])

	out := &dynamodb.ScanOutput{}
	for _, k := range keys {
		if start != "" && k <= start {
			continue
		}
		item := f.items[k]
		if str(item["zone"]) == zone && str(item["owner"]) == owner {
			out.Items = append(out.Items, map[string]types.AttributeValue{"pk": item["pk"], "sk": item["sk"]})
		}
		if len(out.Items) == f.pageSize {
			out.LastEvaluatedKey = map[string]types.AttributeValue{"pk": item["pk"], "sk": item["sk"]}
			break
		}
	}
	return out, nil
}

func TestDynamoIndex_PutGetDelete(t *testing.T) {
	fake := newFakeDynamo()
	x := NewDynamoIndex(fake, "drivemirror-cache", "h1")
	ctx := context.Background()

	_, err := x.Get(ctx, "z", SectionFiles, "f1")
	assert.ErrorIs(t, err, ErrNotFound)

	rec := model.CacheRecord{Zone: "z", Section: SectionFiles, Key: "f1", StoredAt: 100, ExpiresAt: 160}
	require.NoError(t, x.Put(ctx, rec))

	item := fake.items["z#files#h1|k#f1"]
	require.NotNil(t, item)
	assert.Equal(t, "h1", str(item["owner"]))
	assert.Equal(t, "160", item["ttl"].(*types.AttributeValueMemberN).Value)

	got, err := x.Get(ctx, "z", SectionFiles, "f1")
	require.NoError(t, err)
	assert.Equal(t, rec, *got)

	require.NoError(t, x.Delete(ctx, "z", SectionFiles, "f1"))
	_, err = x.Get(ctx, "z", SectionFiles, "f1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDynamoIndex_NoExpiryOmitsTTL(t *testing.T) {
	fake := newFakeDynamo()
	x := NewDynamoIndex(fake, "t", "h1")

	require.NoError(t, x.Put(context.Background(), model.CacheRecord{Zone: "z", Section: SectionLists, Key: "", Pending: true}))

	item := fake.items["z#lists#h1|k#"]
	require.NotNil(t, item)
	_, hasTTL := item["ttl"]
	assert.False(t, hasTTL)
}

func TestDynamoIndex_DeleteZone(t *testing.T) {
	fake := newFakeDynamo()
	x := NewDynamoIndex(fake, "t", "h1")
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, x.Put(ctx, model.CacheRecord{Zone: "mine", Section: SectionFiles, Key: key}))
	}
	require.NoError(t, x.Put(ctx, model.CacheRecord{Zone: "mine", Section: SectionLists, Key: ""}))
	require.NoError(t, x.Put(ctx, model.CacheRecord{Zone: "other", Section: SectionLists, Key: ""}))

	require.NoError(t, x.DeleteZone(ctx, "mine"))

	assert.Len(t, fake.items, 1)
	assert.Contains(t, fake.items, "other#lists#h1|k#")
	assert.Greater(t, fake.scans, 1)
}

func TestDynamoIndex_Errors(t *testing.T) {
	fake := newFakeDynamo()
	fake.err = errors.New("throttled")
	x := NewDynamoIndex(fake, "t", "h1")
	ctx := context.Background()

	_, err := x.Get(ctx, "z", SectionFiles, "f")
	assert.ErrorIs(t, err, fake.err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, x.Put(ctx, model.CacheRecord{Zone: "z"}), fake.err)
	assert.ErrorIs(t, x.DeleteZone(ctx, "z"), fake.err)
}

func TestStore_WithDynamoIndex(t *testing.T) {
	fake := newFakeDynamo()
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	s, err := NewStore(t.TempDir(), "shared", WithIndex(NewDynamoIndex(fake, "t", "h1")), WithClock(c.now))
	require.NoError(t, err)
	ctx := context.Background()
	s.SetSectionTTL(SectionFiles, 30)

	path, err := s.Reserve(ctx, SectionFiles, "f")
	require.NoError(t, err)
	_, ok, err := s.Path(ctx, SectionFiles, "f")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Commit(ctx, SectionFiles, "f"))
	got, ok, err := s.Path(ctx, SectionFiles, "f")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, path, got)
	assert.Equal(t, "1700000030", fake.items["shared#files#h1|k#f"]["ttl"].(*types.AttributeValueMemberN).Value)

	require.NoError(t, s.ClearZone(ctx))
	assert.Empty(t, fake.items)
}

func TestDynamoIndex_GeneratedOwner(t *testing.T) {
	a := NewDynamoIndex(newFakeDynamo(), "t", "")
	b := NewDynamoIndex(newFakeDynamo(), "t", "")
	assert.NotEmpty(t, a.Owner())
	assert.NotEqual(t, a.Owner(), b.Owner())
	assert.Equal(t, "fixed", NewDynamoIndex(newFakeDynamo(), "t", "fixed").Owner())
}

func TestDynamoIndex_DeleteZoneKeepsOtherOwners(t *testing.T) {
	fake := newFakeDynamo()
	a := NewDynamoIndex(fake, "t", "host-a")
	b := NewDynamoIndex(fake, "t", "host-b")
	ctx := context.Background()

	require.NoError(t, a.Put(ctx, model.CacheRecord{Zone: "z", Section: SectionFiles, Key: "f"}))
	require.NoError(t, b.Put(ctx, model.CacheRecord{Zone: "z", Section: SectionFiles, Key: "f"}))
	require.NoError(t, a.DeleteZone(ctx, "z"))

	_, err := a.Get(ctx, "z", SectionFiles, "f")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = b.Get(ctx, "z", SectionFiles, "f")
	assert.NoError(t, err)
}

// Two hosts with their own disks share one table and one zone.
func TestStore_SharedDynamoTable(t *testing.T) {
	fake := newFakeDynamo()
	newHost := func(owner string) *Store {
		s, err := NewStore(t.TempDir(), "shared", WithIndex(NewDynamoIndex(fake, "t", owner)))
		require.NoError(t, err)
		return s
	}
	a, b := newHost("host-a"), newHost("host-b")
	ctx := context.Background()

	t.Run("commit on one host does not expose a pending blob on another", func(t *testing.T) {
		_, err := a.Reserve(ctx, SectionFiles, "f1")
		require.NoError(t, err)

		_, ok, err := b.Path(ctx, SectionFiles, "f1")
		require.NoError(t, err)
		assert.False(t, ok)

		bPath, err := b.Reserve(ctx, SectionFiles, "f1")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(bPath, []byte("PART"), 0o600))

		require.NoError(t, a.Commit(ctx, SectionFiles, "f1"))

		_, ok, err = b.Path(ctx, SectionFiles, "f1")
		require.NoError(t, err)
		assert.False(t, ok, "host b's blob is still pending")

		_, ok, err = a.Path(ctx, SectionFiles, "f1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("miss on one host keeps another host's entry", func(t *testing.T) {
		aPath, err := a.Reserve(ctx, SectionFiles, "f2")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(aPath, []byte("done"), 0o600))
		require.NoError(t, a.Commit(ctx, SectionFiles, "f2"))

		_, ok, err := b.Path(ctx, SectionFiles, "f2")
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = b.Get(ctx, SectionFiles, "f2")
		require.NoError(t, err)
		assert.False(t, ok)

		got, ok, err := a.Path(ctx, SectionFiles, "f2")
		require.NoError(t, err)
		require.True(t, ok)
		data, err := os.ReadFile(got)
		require.NoError(t, err)
		assert.Equal(t, "done", string(data))
	})

	t.Run("clearing one host's zone keeps the other's", func(t *testing.T) {
		require.NoError(t, b.ClearZone(ctx))

		_, ok, err := a.Path(ctx, SectionFiles, "f2")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
