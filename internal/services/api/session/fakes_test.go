package session

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/NordCoder/greensteps/internal/domain/auth"
	"github.com/NordCoder/greensteps/internal/domain/outbox"
	"github.com/NordCoder/greensteps/internal/domain/user"
)

// memDB backs every fake repository of this package. Transactions are
// serialized and roll back by restoring a snapshot.
type memDB struct {
	mu   sync.Mutex
	txMu sync.Mutex

	users  map[uuid.UUID]user.User
	tokens map[uuid.UUID]tokenRow
	outbox []outbox.Message

	dupCreates     int
	beforeMarkUsed func(id uuid.UUID)
	afterFind      func()
}

type tokenRow struct {
	rec domainauth.RefreshToken
}

type snapshot struct {
	users  map[uuid.UUID]user.User
	tokens map[uuid.UUID]tokenRow
	outbox []outbox.Message
}

func newMemDB() *memDB {
	return &memDB{users: map[uuid.UUID]user.User{}, tokens: map[uuid.UUID]tokenRow{}}
}

func (db *memDB) snapshot() snapshot {
	s := snapshot{
		users:  make(map[uuid.UUID]user.User, len(db.users)),
		tokens: make(map[uuid.UUID]tokenRow, len(db.tokens)),
		outbox: append([]outbox.Message(nil), db.outbox...),
	}
	for k, v := range db.users {
		s.users[k] = v
	}
	for k, v := range db.tokens {
		s.tokens[k] = v
	}
	return s
}

func (db *memDB) restore(s snapshot) {
	db.users, db.tokens, db.outbox = s.users, s.tokens, s.outbox
}

func (db *memDB) tokensOf(id uuid.UUID) []domainauth.RefreshToken {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []domainauth.RefreshToken
	for _, row := range db.tokens {
		if row.rec.UserID == id {
			out = append(out, row.rec)
		}
	}
	return out
}

func (db *memDB) messages() []outbox.Message {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]outbox.Message(nil), db.outbox...)
}

type txKey struct{}

type fakeTx struct{ db *memDB }

func (f fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	f.db.txMu.Lock()
	defer f.db.txMu.Unlock()

	f.db.mu.Lock()
	snap := f.db.snapshot()
	f.db.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		f.db.mu.Lock()
		f.db.restore(snap)
		f.db.mu.Unlock()
		return err
	}
	return nil
}

type fakeUsers struct{ db *memDB }

func (r fakeUsers) Create(_ context.Context, u *user.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, v := range r.db.users {
		if v.Email == u.Email {
			return user.ErrEmailExists
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	r.db.users[u.ID] = *u
	return nil
}

func (r fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (r fakeUsers) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*user.User, error) {
	return r.GetByID(ctx, id)
}

func (r fakeUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, user.ErrNotFound
}

func (r fakeUsers) UpdateProfile(_ context.Context, u *user.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[u.ID]; !ok {
		return user.ErrNotFound
	}
	r.db.users[u.ID] = *u
	return nil
}

func (r fakeUsers) SetUserData(_ context.Context, id uuid.UUID, data []json.RawMessage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.UserData = data
	r.db.users[id] = u
	return nil
}

func (r fakeUsers) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.users[id]; !ok {
		return user.ErrNotFound
	}
	delete(r.db.users, id)
	for k, row := range r.db.tokens {
		if row.rec.UserID == id {
			delete(r.db.tokens, k)
		}
	}
	return nil
}

type fakeTokens struct{ db *memDB }

func (r fakeTokens) Create(_ context.Context, t *domainauth.RefreshToken) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.dupCreates > 0 {
		r.db.dupCreates--
		return domainauth.ErrDuplicateFingerprint
	}
	for _, row := range r.db.tokens {
		if row.rec.TokenHash == t.TokenHash {
			return domainauth.ErrDuplicateFingerprint
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.db.tokens[t.ID] = tokenRow{rec: *t}
	return nil
}

func (r fakeTokens) FindByFingerprint(_ context.Context, hash string) (*domainauth.RefreshToken, error) {
	if hook := r.db.afterFind; hook != nil {
		defer hook()
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, row := range r.db.tokens {
		if row.rec.TokenHash == hash {
			rec := row.rec
			return &rec, nil
		}
	}
	return nil, domainauth.ErrRefreshNotFound
}

func (r fakeTokens) MarkUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	if hook := r.db.beforeMarkUsed; hook != nil {
		hook(id)
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	row, ok := r.db.tokens[id]
	if !ok {
		return domainauth.ErrRefreshNotFound
	}
	if row.rec.IsUsed {
		return domainauth.ErrRefreshAlreadyUsed
	}
	row.rec.IsUsed = true
	row.rec.UsedAt = &at
	r.db.tokens[id] = row
	return nil
}

func (r fakeTokens) DeleteByFingerprint(_ context.Context, hash string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for k, row := range r.db.tokens {
		if row.rec.TokenHash == hash {
			delete(r.db.tokens, k)
			return true, nil
		}
	}
	return false, nil
}

// RevokeAll fails on a done context the way a pgx query does.
func (r fakeTokens) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for k, row := range r.db.tokens {
		if row.rec.UserID == userID {
			delete(r.db.tokens, k)
			n++
		}
	}
	return n, nil
}

// Prune orders like the SQL query: survivor first, then created_at and id
// descending. Equal timestamps are common with a frozen clock.
func (r fakeTokens) Prune(_ context.Context, userID uuid.UUID, now time.Time, keep int, survivor uuid.UUID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	byUsed := map[bool][]tokenRow{}
	for k, row := range r.db.tokens {
		if row.rec.UserID != userID {
			continue
		}
		if !now.Before(row.rec.ExpiresAt) {
			delete(r.db.tokens, k)
			n++
			continue
		}
		byUsed[row.rec.IsUsed] = append(byUsed[row.rec.IsUsed], row)
	}
	for _, rows := range byUsed {
		sort.Slice(rows, func(i, j int) bool {
			a, b := rows[i].rec, rows[j].rec
			if (a.ID == survivor) != (b.ID == survivor) {
				return a.ID == survivor
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.ID.String() > b.ID.String()
		})
		for i := keep; i < len(rows); i++ {
			delete(r.db.tokens, rows[i].rec.ID)
			n++
		}
	}
	return n, nil
}

type fakeOutbox struct{ db *memDB }

func (o fakeOutbox) Enqueue(ctx context.Context, key string, kind outbox.Kind, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	o.db.outbox = append(o.db.outbox, outbox.Message{IdempotencyKey: key, Kind: kind, Data: data})
	return nil
}

func (o fakeOutbox) PickBatch(context.Context, int, time.Duration) ([]outbox.Message, error) {
	return nil, nil
}

func (o fakeOutbox) MarkSuccess(context.Context, []string) error { return nil }

type blockedDomains map[string]bool

func (b blockedDomains) IsBlocked(_ context.Context, email string) bool {
	return b[user.EmailDomain(email)]
}
