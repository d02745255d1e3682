package user

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"userdock/internal/app/storage"
	"userdock/internal/pkg/keylock"
	"userdock/internal/pkg/logx"
)

// DefaultBroadcastSender is the sender used by Broadcast when none is given.
const DefaultBroadcastSender = "admin"

// UsernamePrefix prefixes the id to form the default username.
const UsernamePrefix = "user_"

// errRecordVanished is returned when a listed record can no longer be read.
var errRecordVanished = errors.New("record listed but not found")

// Store implements the record operations over a storage.RecordBackend.
//
// Every read-modify-write of one record runs under that record's lock, so concurrent
// operations on the same id in this process are applied one after another. Operations
// over all records lock one record at a time.
//
// An operation runs to completion once started: cancelling the caller's context does not
// reach the backend. Context values such as the request logger are kept.
type Store struct {
	backend storage.RecordBackend
	locks   *keylock.Locker
	now     func() time.Time
}

// NewStore returns a Store persisting through backend.
func NewStore(backend storage.RecordBackend) *Store {
	return &Store{
		backend: backend,
		locks:   keylock.New(),
		now:     time.Now,
	}
}

// ValidateID rejects ids that are empty or could escape a flat key namespace.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, "/\\\x00") {
		return ErrInvalidID
	}
	return nil
}

func (s *Store) timestamp() Timestamp {
	return NewTimestamp(s.now())
}

// load reads and decodes the record for id. found is false if none is stored.
func (s *Store) load(ctx context.Context, id string) (rec UserRecord, found bool, err error) {
	raw, found, err := s.backend.Get(ctx, id)
	if err != nil {
		return UserRecord{}, false, storageErr("read", id, err)
	}
	if !found {
		return UserRecord{}, false, nil
	}

	if err := json.Unmarshal(raw, &rec); err != nil {
		return UserRecord{}, false, storageErr("parse", id, err)
	}
	return rec, true, nil
}

// save persists rec under id, the key it was loaded from, whatever id the document holds.
func (s *Store) save(ctx context.Context, id string, rec UserRecord) error {
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return storageErr("encode", id, err)
	}
	if err := s.backend.Put(ctx, id, raw); err != nil {
		return storageErr("write", id, err)
	}
	return nil
}

// GetOrCreate returns the record for id, creating and persisting it with the full
// default field set if none exists.
func (s *Store) GetOrCreate(ctx context.Context, id string) (UserRecord, error) {
	if err := ValidateID(id); err != nil {
		return UserRecord{}, err
	}
	ctx = context.WithoutCancel(ctx)

	unlock := s.locks.Lock(id)
	defer unlock()

	rec, found, err := s.load(ctx, id)
	if err != nil {
		return UserRecord{}, err
	}
	if found {
		return rec, nil
	}

	username := UsernamePrefix + id
	coins, level := int64(0), int64(1)
	createdAt := s.timestamp()
	rec = UserRecord{
		ID:        id,
		Username:  &username,
		Coins:     &coins,
		Level:     &level,
		Messages:  []Message{},
		CreatedAt: &createdAt,
	}

	if err := s.save(ctx, id, rec); err != nil {
		return UserRecord{}, err
	}

	logx.Ctx(ctx).Debug().Str("user_id", id).Msg("Created default user record")
	return rec, nil
}

// MergeUpdate shallow-merges partial into the record for id and persists the result.
// A missing record starts from {id, createdAt} only. The stored id is always set to id.
//
// Besides id, the keys createdAt and messages in partial are ignored, unlike a plain
// overwrite: createdAt never changes after creation and messages only grow through
// AppendMessage and Broadcast.
func (s *Store) MergeUpdate(ctx context.Context, id string, partial map[string]json.RawMessage) (UserRecord, error) {
	if err := ValidateID(id); err != nil {
		return UserRecord{}, err
	}
	ctx = context.WithoutCancel(ctx)

	unlock := s.locks.Lock(id)
	defer unlock()

	rec, found, err := s.load(ctx, id)
	if err != nil {
		return UserRecord{}, err
	}
	if !found {
		createdAt := s.timestamp()
		rec = UserRecord{ID: id, CreatedAt: &createdAt}
	}

	rec.Merge(partial)
	rec.SetID(id)

	if err := s.save(ctx, id, rec); err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

// AppendMessage appends {from, text, now} to the message log of id and returns it.
// A missing record is first persisted as {id, messages: [], coins: 0, createdAt}.
func (s *Store) AppendMessage(ctx context.Context, id, from, text string) (Message, error) {
	if from == "" || text == "" {
		return Message{}, ErrMissingFields
	}
	if err := ValidateID(id); err != nil {
		return Message{}, err
	}
	ctx = context.WithoutCancel(ctx)

	unlock := s.locks.Lock(id)
	defer unlock()

	rec, found, err := s.load(ctx, id)
	if err != nil {
		return Message{}, err
	}
	if !found {
		coins := int64(0)
		createdAt := s.timestamp()
		rec = UserRecord{ID: id, Messages: []Message{}, Coins: &coins, CreatedAt: &createdAt}
		if err := s.save(ctx, id, rec); err != nil {
			return Message{}, err
		}
	}

	msg := Message{From: from, Text: text, Date: s.timestamp()}
	rec.AppendMessage(msg)

	if err := s.save(ctx, id, rec); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ListAll returns every stored record in backend enumeration order.
// Any record that cannot be read or decoded fails the whole call.
func (s *Store) ListAll(ctx context.Context) ([]UserRecord, error) {
	ctx = context.WithoutCancel(ctx)
	ids, err := s.ids(ctx)
	if err != nil {
		return nil, err
	}

	users := make([]UserRecord, 0, len(ids))
	for _, id := range ids {
		rec, found, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, storageErr("read", id, errRecordVanished)
		}
		users = append(users, rec)
	}
	return users, nil
}

// Broadcast appends {from, text} to every stored record and returns how many were updated.
// An empty from means DefaultBroadcastSender. The first failure stops the broadcast; records
// already updated keep the message.
func (s *Store) Broadcast(ctx context.Context, from, text string) (int, error) {
	if text == "" {
		return 0, ErrMissingText
	}
	if from == "" {
		from = DefaultBroadcastSender
	}
	ctx = context.WithoutCancel(ctx)

	ids, err := s.ids(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, id := range ids {
		if err := s.appendExisting(ctx, id, Message{From: from, Text: text}); err != nil {
			logx.Ctx(ctx).Warn().Int("sent", sent).Int("total", len(ids)).Msg("Broadcast aborted")
			return sent, err
		}
		sent++
	}

	logx.Ctx(ctx).Info().Int("sent_to", sent).Msg("Broadcast delivered")
	return sent, nil
}

// appendExisting appends m, dated now, to a record known to exist.
func (s *Store) appendExisting(ctx context.Context, id string, m Message) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, found, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return storageErr("read", id, errRecordVanished)
	}

	m.Date = s.timestamp()
	rec.AppendMessage(m)
	return s.save(ctx, id, rec)
}

// ids ensures the storage location exists and enumerates the stored record ids.
func (s *Store) ids(ctx context.Context) ([]string, error) {
	if err := s.backend.Ensure(ctx); err != nil {
		return nil, storageErr("ensure", "", err)
	}

	ids, err := s.backend.List(ctx)
	if err != nil {
		return nil, storageErr("list", "", err)
	}
	return ids, nil
}
