package bolt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/brk3/streakmate/internal/storage"
	"github.com/brk3/streakmate/pkg/habit"
	"go.etcd.io/bbolt"
	"golang.org/x/oauth2"
)

const (
	rootBucket          = "users"
	partnershipsBucket  = "partnerships"
	inviteCodesBucket   = "invite_codes"
	apiKeysBucket       = "api_keys"
	refreshTokensBucket = "refresh_tokens"

	habitsBucket  = "habits"
	logsBucket    = "logs"
	itemsBucket   = "items"
	profileBucket = "profile"
	profileKey    = "user"

	defaultUserID = "default"
)

type Store struct {
	db *bbolt.DB
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}

	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{rootBucket, partnershipsBucket, inviteCodesBucket, apiKeysBucket, refreshTokensBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Update(fn func(tx storage.Tx) error) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

func (s *Store) View(fn func(tx storage.Tx) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return fn(&boltTx{tx: tx})
	})
}

type boltTx struct {
	tx *bbolt.Tx
}

// userBucket returns users/<userID>/<name>. In a read-only transaction a
// missing bucket yields nil, which callers treat as empty.
func (b *boltTx) userBucket(userID, name string) (*bbolt.Bucket, error) {
	if userID == "" {
		userID = defaultUserID
	}
	users := b.tx.Bucket([]byte(rootBucket))
	if !b.tx.Writable() {
		ub := users.Bucket([]byte(userID))
		if ub == nil {
			return nil, nil
		}
		return ub.Bucket([]byte(name)), nil
	}
	ub, err := users.CreateBucketIfNotExists([]byte(userID))
	if err != nil {
		return nil, err
	}
	return ub.CreateBucketIfNotExists([]byte(name))
}

func logKey(habitID string, d habit.Date) []byte {
	return fmt.Appendf(nil, "%s/%s", habitID, d)
}

func itemKey(habitID, itemID string) []byte {
	return fmt.Appendf(nil, "%s/%s", habitID, itemID)
}

func getJSON[T any](bucket *bbolt.Bucket, key []byte) (T, bool, error) {
	var out T
	if bucket == nil {
		return out, false, nil
	}
	v := bucket.Get(key)
	if v == nil {
		return out, false, nil
	}
	if err := json.Unmarshal(v, &out); err != nil {
		return out, false, err
	}
	return out, true, nil
}

func putJSON(bucket *bbolt.Bucket, key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return bucket.Put(key, val)
}

func scanPrefix[T any](bucket *bbolt.Bucket, prefix []byte) ([]T, error) {
	var out []T
	if bucket == nil {
		return out, nil
	}
	c := bucket.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var e T
		if err := json.Unmarshal(v, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func deletePrefix(bucket *bbolt.Bucket, prefix []byte) error {
	c := bucket.Cursor()
	// Collect first: deleting while advancing a bbolt cursor skips keys.
	var keys [][]byte
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (b *boltTx) GetHabit(userID, habitID string) (habit.Habit, bool, error) {
	bucket, err := b.userBucket(userID, habitsBucket)
	if err != nil {
		return habit.Habit{}, false, err
	}
	return getJSON[habit.Habit](bucket, []byte(habitID))
}

func (b *boltTx) ListHabits(userID string) ([]habit.Habit, error) {
	bucket, err := b.userBucket(userID, habitsBucket)
	if err != nil {
		return nil, err
	}
	out, err := scanPrefix[habit.Habit](bucket, nil)
	if err != nil {
		return nil, err
	}
	storage.SortHabits(out)
	return out, nil
}

func (b *boltTx) PutHabit(userID string, h habit.Habit) error {
	bucket, err := b.userBucket(userID, habitsBucket)
	if err != nil {
		return err
	}
	return putJSON(bucket, []byte(h.ID), h)
}

func (b *boltTx) DeleteHabit(userID, habitID string) error {
	habits, err := b.userBucket(userID, habitsBucket)
	if err != nil {
		return err
	}
	if err := habits.Delete([]byte(habitID)); err != nil {
		return err
	}
	prefix := []byte(habitID + "/")
	for _, name := range []string{logsBucket, itemsBucket} {
		bucket, err := b.userBucket(userID, name)
		if err != nil {
			return err
		}
		if err := deletePrefix(bucket, prefix); err != nil {
			return err
		}
	}
	return nil
}

func (b *boltTx) GetLog(userID, habitID string, d habit.Date) (habit.DailyLog, bool, error) {
	bucket, err := b.userBucket(userID, logsBucket)
	if err != nil {
		return habit.DailyLog{}, false, err
	}
	return getJSON[habit.DailyLog](bucket, logKey(habitID, d))
}

// ListLogs relies on the YYYY-MM-DD key suffix sorting chronologically.
func (b *boltTx) ListLogs(userID, habitID string) ([]habit.DailyLog, error) {
	bucket, err := b.userBucket(userID, logsBucket)
	if err != nil {
		return nil, err
	}
	return scanPrefix[habit.DailyLog](bucket, []byte(habitID+"/"))
}

func (b *boltTx) PutLog(userID string, l habit.DailyLog) error {
	bucket, err := b.userBucket(userID, logsBucket)
	if err != nil {
		return err
	}
	return putJSON(bucket, logKey(l.HabitID, l.Date), l)
}

func (b *boltTx) ListItems(userID, habitID string) ([]habit.ListItem, error) {
	bucket, err := b.userBucket(userID, itemsBucket)
	if err != nil {
		return nil, err
	}
	out, err := scanPrefix[habit.ListItem](bucket, []byte(habitID+"/"))
	if err != nil {
		return nil, err
	}
	storage.SortItems(out)
	return out, nil
}

func (b *boltTx) PutItem(userID string, it habit.ListItem) error {
	bucket, err := b.userBucket(userID, itemsBucket)
	if err != nil {
		return err
	}
	return putJSON(bucket, itemKey(it.HabitID, it.ID), it)
}

func (b *boltTx) DeleteItem(userID, habitID, itemID string) error {
	bucket, err := b.userBucket(userID, itemsBucket)
	if err != nil {
		return err
	}
	return bucket.Delete(itemKey(habitID, itemID))
}

func (b *boltTx) GetPartnership(id string) (habit.Partnership, bool, error) {
	return getJSON[habit.Partnership](b.tx.Bucket([]byte(partnershipsBucket)), []byte(id))
}

func (b *boltTx) GetPartnershipByCode(code string) (habit.Partnership, bool, error) {
	id := b.tx.Bucket([]byte(inviteCodesBucket)).Get([]byte(code))
	if id == nil {
		return habit.Partnership{}, false, nil
	}
	return b.GetPartnership(string(id))
}

func (b *boltTx) ListPartnerships(userID string) ([]habit.Partnership, error) {
	var out []habit.Partnership
	err := b.tx.Bucket([]byte(partnershipsBucket)).ForEach(func(_, v []byte) error {
		var p habit.Partnership
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		if p.Involves(userID) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	storage.SortPartnerships(out)
	return out, nil
}

func (b *boltTx) PutPartnership(p habit.Partnership) error {
	codes := b.tx.Bucket([]byte(inviteCodesBucket))
	if existing := codes.Get([]byte(p.InviteCode)); existing != nil && string(existing) != p.ID {
		return storage.ErrDuplicateInviteCode
	}
	if err := codes.Put([]byte(p.InviteCode), []byte(p.ID)); err != nil {
		return err
	}
	return putJSON(b.tx.Bucket([]byte(partnershipsBucket)), []byte(p.ID), p)
}

func (b *boltTx) GetUser(userID string) (habit.User, bool, error) {
	bucket, err := b.userBucket(userID, profileBucket)
	if err != nil {
		return habit.User{}, false, err
	}
	return getJSON[habit.User](bucket, []byte(profileKey))
}

func (b *boltTx) PutUser(u habit.User) error {
	bucket, err := b.userBucket(u.ID, profileBucket)
	if err != nil {
		return err
	}
	return putJSON(bucket, []byte(profileKey), u)
}

func (s *Store) PutAPIKey(keyHash, userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(apiKeysBucket)).Put([]byte(keyHash), []byte(userID))
	})
}

func (s *Store) GetAPIKey(keyHash string) (string, bool, error) {
	var userID string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(apiKeysBucket)).Get([]byte(keyHash)); v != nil {
			userID = string(v)
		}
		return nil
	})
	return userID, userID != "", err
}

func (s *Store) ListAPIKeyHashes(userID string) ([]string, error) {
	out := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(apiKeysBucket)).ForEach(func(k, v []byte) error {
			if string(v) == userID {
				out = append(out, string(k))
			}
			return nil
		})
	})
	return out, err
}

func (s *Store) DeleteAPIKey(keyHash string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(apiKeysBucket)).Delete([]byte(keyHash))
	})
}

func (s *Store) PutRefreshToken(userID string, tok *oauth2.Token) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket([]byte(refreshTokensBucket)), []byte(userID), tok)
	})
}

func (s *Store) GetRefreshToken(userID string) (*oauth2.Token, bool, error) {
	var tok *oauth2.Token
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		t, ok, err := getJSON[oauth2.Token](tx.Bucket([]byte(refreshTokensBucket)), []byte(userID))
		if err != nil || !ok {
			return err
		}
		tok, found = &t, true
		return nil
	})
	return tok, found, err
}

func (s *Store) DeleteRefreshToken(userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(refreshTokensBucket)).Delete([]byte(userID))
	})
}

var _ storage.Store = (*Store)(nil)
