package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"userdock/internal/app/storage"
)

// setupTestStore returns a Store over a fresh file backend whose root does not exist yet,
// with a clock advancing one second per reading.
func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "users")
	backend := storage.NewFileBackend(dir)
	require.NoError(t, backend.Ensure(context.Background()))

	s := NewStore(backend)
	s.now = steppingClock(testTime)
	return s, dir
}

func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Second)
		return t
	}
}

func readDoc(t *testing.T, dir, id string) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(dir, id+".json"))
	require.NoError(t, err)
	return string(raw)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return string(raw)
}

func TestGetOrCreate_Defaults(t *testing.T) {
	s, dir := setupTestStore(t)
	ctx := context.Background()

	rec, err := s.GetOrCreate(ctx, "42")
	require.NoError(t, err)

	assert.Equal(t, "42", rec.ID)
	require.NotNil(t, rec.Username)
	assert.Equal(t, "user_42", *rec.Username)
	require.NotNil(t, rec.Coins)
	assert.EqualValues(t, 0, *rec.Coins)
	require.NotNil(t, rec.Level)
	assert.EqualValues(t, 1, *rec.Level)
	assert.NotNil(t, rec.Messages)
	assert.Empty(t, rec.Messages)
	require.NotNil(t, rec.CreatedAt)
	assert.False(t, rec.CreatedAt.IsZero())

	assert.Equal(t, `{
  "id": "42",
  "username": "user_42",
  "coins": 0,
  "level": 1,
  "messages": [],
  "createdAt": "2026-01-02T03:04:05.678Z"
}`, readDoc(t, dir, "42"))
}

func TestGetOrCreate_SecondCallIsPureRead(t *testing.T) {
	s, dir := setupTestStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreate(ctx, "42")
	require.NoError(t, err)
	before := readDoc(t, dir, "42")

	second, err := s.GetOrCreate(ctx, "42")
	require.NoError(t, err)

	assert.Equal(t, mustJSON(t, first), mustJSON(t, second))
	assert.Equal(t, before, readDoc(t, dir, "42"))
}

func TestGetOrCreate_ReturnsStoredDocumentVerbatim(t *testing.T) {
	s, dir := setupTestStore(t)

	doc := `{"id":"7","custom":{"a":1},"coins":"many"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "7.json"), []byte(doc), 0o644))

	rec, err := s.GetOrCreate(context.Background(), "7")
	require.NoError(t, err)
	assert.JSONEq(t, doc, mustJSON(t, rec))
}

func TestGetOrCreate_CorruptDocument(t *testing.T) {
	s, dir := setupTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"id":`), 0o644))

	_, err := s.GetOrCreate(context.Background(), "bad")

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "parse", storageErr.Op)
	assert.Equal(t, "bad", storageErr.ID)
}

func TestStore_InvalidIDs(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"", ".", "..", "../etc", "a/b", `a\b`, "a\x00b"} {
		_, err := s.GetOrCreate(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
		assert.ErrorIs(t, err, ErrValidation, id)

		_, err = s.MergeUpdate(ctx, id, nil)
		assert.ErrorIs(t, err, ErrInvalidID, id)

		_, err = s.AppendMessage(ctx, id, "admin", "hi")
		assert.ErrorIs(t, err, ErrInvalidID, id)
	}
}

func TestMergeUpdate_NeverChangesID(t *testing.T) {
	s, _ := setupTestStore(t)

	rec, err := s.MergeUpdate(context.Background(), "42", partial(t, `{"id":"999","coins":5}`))
	require.NoError(t, err)
	assert.Equal(t, "42", rec.ID)
	assert.EqualValues(t, 5, *rec.Coins)

	_, found, err := s.backend.Get(context.Background(), "999")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMergeUpdate_MissingRecordStartsFromStub(t *testing.T) {
	s, _ := setupTestStore(t)

	rec, err := s.MergeUpdate(context.Background(), "42", partial(t, `{"coins":5}`))
	require.NoError(t, err)

	assert.JSONEq(t, `{"id":"42","coins":5,"createdAt":"2026-01-02T03:04:05.678Z"}`, mustJSON(t, rec))
	assert.Nil(t, rec.Username)
	assert.Nil(t, rec.Level)
	assert.Nil(t, rec.Messages)
}

func TestMergeUpdate_PreservesCreatedAt(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	created, err := s.GetOrCreate(ctx, "42")
	require.NoError(t, err)

	for i := range 3 {
		rec, err := s.MergeUpdate(ctx, "42", partial(t, fmt.Sprintf(`{"coins":%d,"createdAt":"1999-01-01T00:00:00.000Z"}`, i)))
		require.NoError(t, err)
		assert.Equal(t, created.CreatedAt, rec.CreatedAt)
	}

	final, err := s.GetOrCreate(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, final.CreatedAt)
	assert.EqualValues(t, 2, *final.Coins)
	assert.Equal(t, "user_42", *final.Username)
}

func TestMergeUpdate_KeepsMessagesAndExtraFields(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.AppendMessage(ctx, "42", "admin", "welcome")
	require.NoError(t, err)

	rec, err := s.MergeUpdate(ctx, "42", partial(t, `{"messages":[],"guild":"red","coins":10}`))
	require.NoError(t, err)
	require.Len(t, rec.Messages, 1)

	rec, err = s.MergeUpdate(ctx, "42", partial(t, `{"level":4}`))
	require.NoError(t, err)
	assert.JSONEq(t, `"red"`, string(rec.Extra["guild"]))
	assert.EqualValues(t, 10, *rec.Coins)
	assert.EqualValues(t, 4, *rec.Level)
	assert.Len(t, rec.Messages, 1)
}

func TestAppendMessage_Validation(t *testing.T) {
	s, dir := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreate(ctx, "42")
	require.NoError(t, err)
	before := readDoc(t, dir, "42")

	_, err = s.AppendMessage(ctx, "42", "", "hi")
	assert.ErrorIs(t, err, ErrMissingFields)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.AppendMessage(ctx, "42", "admin", "")
	assert.ErrorIs(t, err, ErrMissingFields)

	assert.Equal(t, before, readDoc(t, dir, "42"))

	// Rejection does not lazily create a record either.
	_, err = s.AppendMessage(ctx, "43", "", "")
	require.ErrorIs(t, err, ErrMissingFields)
	_, statErr := os.Stat(filepath.Join(dir, "43.json"))
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestAppendMessage_Cumulative(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	texts := []string{"one", "two", "three"}
	for i, text := range texts {
		msg, err := s.AppendMessage(ctx, "42", fmt.Sprintf("player_%d", i), text)
		require.NoError(t, err)
		assert.Equal(t, text, msg.Text)
		assert.False(t, msg.Date.IsZero())
	}

	rec, err := s.GetOrCreate(ctx, "42")
	require.NoError(t, err)
	require.Len(t, rec.Messages, 3)
	for i, m := range rec.Messages {
		assert.Equal(t, fmt.Sprintf("player_%d", i), m.From)
		assert.Equal(t, texts[i], m.Text)
		assert.False(t, m.Date.IsZero())
		if i > 0 {
			assert.True(t, m.Date.After(rec.Messages[i-1].Date.Time))
		}
	}
}

func TestAppendMessage_MissingRecordStub(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	msg, err := s.AppendMessage(ctx, "42", "admin", "hello")
	require.NoError(t, err)
	assert.Equal(t, Message{From: "admin", Text: "hello", Date: NewTimestamp(testTime.Add(time.Second))}, msg)

	rec, err := s.GetOrCreate(ctx, "42")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": "42",
		"coins": 0,
		"messages": [{"from":"admin","text":"hello","date":"2026-01-02T03:04:06.678Z"}],
		"createdAt": "2026-01-02T03:04:05.678Z"
	}`, mustJSON(t, rec))
}

func TestGetOrCreate_KeepsStoredTextExactly(t *testing.T) {
	s, dir := setupTestStore(t)
	ctx := context.Background()

	doc := `{"id":"v","messages":null,"createdAt":"2024-01-01T10:00:00.123456+02:00","extra":1}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "v.json"), []byte(doc), 0o644))

	rec, err := s.GetOrCreate(ctx, "v")
	require.NoError(t, err)
	assert.JSONEq(t, doc, mustJSON(t, rec))

	rec, err = s.MergeUpdate(ctx, "v", partial(t, `{"extra":2}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"v","messages":null,"createdAt":"2024-01-01T10:00:00.123456+02:00","extra":2}`, readDoc(t, dir, "v"))
}

func TestAppendMessage_DefaultsNullMessages(t *testing.T) {
	s, dir := setupTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "9.json"), []byte(`{"id":"9","messages":null}`), 0o644))

	_, err := s.AppendMessage(context.Background(), "9", "admin", "hi")
	require.NoError(t, err)

	rec, err := s.GetOrCreate(context.Background(), "9")
	require.NoError(t, err)
	assert.Len(t, rec.Messages, 1)
}

func TestAppendMessage_ConcurrentWritersKeepEveryMessage(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendMessage(ctx, "42", "player", fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := s.GetOrCreate(ctx, "42")
	require.NoError(t, err)
	assert.Len(t, rec.Messages, writers)
}

func TestListAll_EmptyCreatesLocation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "users")
	s := NewStore(storage.NewFileBackend(dir))

	users, err := s.ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestListAll_ReturnsEveryRecord(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreate(ctx, "a")
	require.NoError(t, err)
	_, err = s.MergeUpdate(ctx, "b", partial(t, `{"coins":3}`))
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, "c", "admin", "hi")
	require.NoError(t, err)

	users, err := s.ListAll(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
}

func TestListAll_CorruptRecordAbortsEverything(t *testing.T) {
	s, dir := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetOrCreate(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`not json`), 0o644))

	users, err := s.ListAll(ctx)
	assert.Nil(t, users)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "b", storageErr.ID)
}

func TestBroadcast_NoUsers(t *testing.T) {
	s, dir := setupTestStore(t)

	sent, err := s.Broadcast(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Equal(t, 0, sent)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBroadcast_ReachesEveryUser(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	ids := []string{"1", "2", "3"}
	before := map[string]int{}
	for i, id := range ids {
		for j := 0; j < i; j++ {
			_, err := s.AppendMessage(ctx, id, "player", "x")
			require.NoError(t, err)
		}
		rec, err := s.GetOrCreate(ctx, id)
		require.NoError(t, err)
		before[id] = len(rec.Messages)
	}

	sent, err := s.Broadcast(ctx, "", "hello")
	require.NoError(t, err)
	assert.Equal(t, len(ids), sent)

	for _, id := range ids {
		rec, err := s.GetOrCreate(ctx, id)
		require.NoError(t, err)
		require.Len(t, rec.Messages, before[id]+1)

		last := rec.Messages[len(rec.Messages)-1]
		assert.Equal(t, DefaultBroadcastSender, last.From)
		assert.Equal(t, "hello", last.Text)
		assert.False(t, last.Date.IsZero())
	}
}

func TestBroadcast_CustomSenderAndMissingText(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := s.MergeUpdate(ctx, "1", partial(t, `{"coins":1}`))
	require.NoError(t, err)

	_, err = s.Broadcast(ctx, "system", "")
	assert.ErrorIs(t, err, ErrMissingText)

	sent, err := s.Broadcast(ctx, "system", "maintenance")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	rec, err := s.GetOrCreate(ctx, "1")
	require.NoError(t, err)
	require.Len(t, rec.Messages, 1)
	assert.Equal(t, "system", rec.Messages[0].From)
}

// flakyBackend fails every Put after the first okPuts.
type flakyBackend struct {
	*storage.MemoryBackend
	mu     sync.Mutex
	okPuts int
}

var errDiskFull = errors.New("disk full")

func (b *flakyBackend) Put(ctx context.Context, id string, raw []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.okPuts == 0 {
		return errDiskFull
	}
	b.okPuts--
	return b.MemoryBackend.Put(ctx, id, raw)
}

func TestBroadcast_FailureStopsMidway(t *testing.T) {
	backend := &flakyBackend{MemoryBackend: storage.NewMemoryBackend(), okPuts: 4}
	s := NewStore(backend)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.GetOrCreate(ctx, id)
		require.NoError(t, err)
	}

	// One put left: "a" receives the broadcast, "b" fails, "c" is never reached.
	sent, err := s.Broadcast(ctx, "", "hello")
	assert.Equal(t, 1, sent)
	require.ErrorIs(t, err, errDiskFull)

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "write", storageErr.Op)
	assert.Equal(t, "b", storageErr.ID)

	for id, want := range map[string]int{"a": 1, "b": 0, "c": 0} {
		rec, err := s.GetOrCreate(ctx, id)
		require.NoError(t, err)
		assert.Len(t, rec.Messages, want, id)
	}
}

// cancelingBackend fails calls on a cancelled context and cancels it after every Put.
type cancelingBackend struct {
	*storage.MemoryBackend
	cancel context.CancelFunc
}

func (b *cancelingBackend) Get(ctx context.Context, id string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return b.MemoryBackend.Get(ctx, id)
}

func (b *cancelingBackend) Put(ctx context.Context, id string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer b.cancel()
	return b.MemoryBackend.Put(ctx, id, raw)
}

func TestBroadcast_RunsToCompletionAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &cancelingBackend{MemoryBackend: storage.NewMemoryBackend(), cancel: cancel}
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, backend.MemoryBackend.Put(ctx, id, []byte(`{"id":"`+id+`","messages":[]}`)))
	}
	s := NewStore(backend)

	sent, err := s.Broadcast(ctx, "", "hello")
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	for _, id := range []string{"1", "2", "3"} {
		rec, err := s.GetOrCreate(context.Background(), id)
		require.NoError(t, err)
		assert.Len(t, rec.Messages, 1, id)
	}
}

func TestAppendMessage_RunsToCompletionAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewStore(&cancelingBackend{MemoryBackend: storage.NewMemoryBackend(), cancel: cancel})

	// The stub write cancels ctx before the message itself is written.
	_, err := s.AppendMessage(ctx, "42", "admin", "hi")
	require.NoError(t, err)

	rec, err := s.GetOrCreate(context.Background(), "42")
	require.NoError(t, err)
	assert.Len(t, rec.Messages, 1)
}

func TestStore_WritesBackUnderStorageKey(t *testing.T) {
	backend := storage.NewMemoryBackend()
	ctx := context.Background()
	require.NoError(t, backend.Put(ctx, "a", []byte(`{"id":"b","coins":1}`)))
	require.NoError(t, backend.Put(ctx, "c", []byte(`{"coins":2}`)))

	s := NewStore(backend)
	s.now = steppingClock(testTime)

	_, err := s.AppendMessage(ctx, "a", "admin", "hi")
	require.NoError(t, err)

	sent, err := s.Broadcast(ctx, "", "hello")
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	ids, err := backend.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids)

	raw, found, err := backend.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{
		"id": "b",
		"coins": 1,
		"messages": [
			{"from":"admin","text":"hi","date":"2026-01-02T03:04:05.678Z"},
			{"from":"admin","text":"hello","date":"2026-01-02T03:04:06.678Z"}
		]
	}`, string(raw))

	raw, found, err = backend.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{
		"coins": 2,
		"messages": [{"from":"admin","text":"hello","date":"2026-01-02T03:04:07.678Z"}]
	}`, string(raw))
}

func TestGetOrCreate_WriteFailure(t *testing.T) {
	s := NewStore(&flakyBackend{MemoryBackend: storage.NewMemoryBackend()})

	_, err := s.GetOrCreate(context.Background(), "42")
	assert.ErrorIs(t, err, errDiskFull)

	var storageErr *StorageError
	assert.ErrorAs(t, err, &storageErr)
}

func TestRoundTrip_RefetchEqualsLastPersisted(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	created, err := s.GetOrCreate(ctx, "1")
	require.NoError(t, err)
	refetched, err := s.GetOrCreate(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, created, refetched)

	merged, err := s.MergeUpdate(ctx, "2", partial(t, `{"coins":7,"tags":["a","b"],"meta":{"k":null}}`))
	require.NoError(t, err)
	refetched, err = s.GetOrCreate(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, mustJSON(t, merged), mustJSON(t, refetched))

	msg, err := s.AppendMessage(ctx, "1", "admin", "hi")
	require.NoError(t, err)
	refetched, err = s.GetOrCreate(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, msg, refetched.Messages[len(refetched.Messages)-1])
}
