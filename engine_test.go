package authcore

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Mail.VerifyBaseURL = "https://films.example/verify"
	cfg.Mail.ResetBaseURL = "https://films.example/reset"
	// keep hashing cheap in tests
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*User)}
}

func (r *memUserRepo) clone(u *User) *User {
	out := *u
	out.OTPSecret = append([]byte(nil), u.OTPSecret...)
	return &out
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return r.clone(u), nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return r.clone(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *memUserRepo) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	r.users[u.ID] = r.clone(u)
	return nil
}

func (r *memUserRepo) update(id string, fn func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}

func (r *memUserRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return r.update(id, func(u *User) { u.PasswordHash = hash })
}

func (r *memUserRepo) Activate(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *User) {
		u.Active = true
		u.EmailVerifiedAt = &at
	})
}

func (r *memUserRepo) SetOTPSecret(_ context.Context, id string, secret []byte) error {
	return r.update(id, func(u *User) { u.OTPSecret = append([]byte(nil), secret...) })
}

func (r *memUserRepo) EnableTwoFactor(_ context.Context, id, lastUsedOTP string) error {
	return r.update(id, func(u *User) {
		u.UsesTwoFactor = true
		u.LastUsedOTP = lastUsedOTP
	})
}

func (r *memUserRepo) DisableTwoFactor(_ context.Context, id string) error {
	return r.update(id, func(u *User) {
		u.UsesTwoFactor = false
		u.OTPSecret = nil
		u.LastUsedOTP = ""
	})
}

func (r *memUserRepo) SetLastUsedOTP(_ context.Context, id, code string) error {
	return r.update(id, func(u *User) { u.LastUsedOTP = code })
}

func (r *memUserRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *User) { u.LastLoginAt = &at })
}

type memBackupRepo struct {
	mu    sync.Mutex
	codes map[string]*BackupCode
}

func newMemBackupRepo() *memBackupRepo {
	return &memBackupRepo{codes: make(map[string]*BackupCode)}
}

func (r *memBackupRepo) ReplaceForUser(_ context.Context, userID string, codes []*BackupCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.codes {
		if c.UserID == userID && !c.Used {
			delete(r.codes, id)
		}
	}
	for _, c := range codes {
		cp := *c
		r.codes[c.ID] = &cp
	}
	return nil
}

func (r *memBackupRepo) UnusedForUser(_ context.Context, userID string) ([]*BackupCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []*BackupCode
	for _, c := range r.codes {
		if c.UserID == userID && !c.Used && c.ExpiresAt.After(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memBackupRepo) CountUnused(ctx context.Context, userID string) (int, error) {
	unused, err := r.UnusedForUser(ctx, userID)
	return len(unused), err
}

func (r *memBackupRepo) Consume(_ context.Context, codeID string, usedAt, removeAfter time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[codeID]
	if !ok || c.Used {
		return false, nil
	}
	c.Used = true
	c.UsedAt = &usedAt
	c.RemoveAfter = &removeAfter
	return true, nil
}

func (r *memBackupRepo) InvalidateForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.codes {
		if c.UserID == userID {
			delete(r.codes, id)
		}
	}
	return nil
}

func (r *memBackupRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, c := range r.codes {
		expired := !c.ExpiresAt.After(now)
		retired := c.Used && c.RemoveAfter != nil && !c.RemoveAfter.After(now)
		if expired || retired {
			delete(r.codes, id)
			n++
		}
	}
	return n, nil
}

type capturedJob struct {
	Kind    string
	Payload []byte
}

type captureQueue struct {
	mu   sync.Mutex
	jobs []capturedJob
	fail bool
}

func (q *captureQueue) Enqueue(_ context.Context, kind string, payload any) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fail {
		return "", ErrQueueUnavailable
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	q.jobs = append(q.jobs, capturedJob{Kind: kind, Payload: data})
	return "job-1", nil
}

func (q *captureQueue) emailJobs(t *testing.T) []EmailJob {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []EmailJob
	for _, j := range q.jobs {
		if j.Kind != TaskSendEmail {
			continue
		}
		var job EmailJob
		if err := json.Unmarshal(j.Payload, &job); err != nil {
			t.Fatalf("decode captured email job: %v", err)
		}
		out = append(out, job)
	}
	return out
}

type testEnv struct {
	engine *Engine
	users  *memUserRepo
	codes  *memBackupRepo
	queue  *captureQueue
	mr     *miniredis.Miniredis
}

func newTestEngine(t *testing.T, cfg Config) (*testEnv, func()) {
	t.Helper()

	mr, client := newTestRedis(t)

	users := newMemUserRepo()
	codes := newMemBackupRepo()
	queue := &captureQueue{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithRepositories(users, codes).
		WithQueue(queue).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}

	env := &testEnv{engine: engine, users: users, codes: codes, queue: queue, mr: mr}
	done := func() {
		engine.Close()
		_ = client.Close()
		mr.Close()
	}
	return env, done
}

// totpCode computes the account's current authenticator code, shifted by
// offset periods. Offsets within the configured skew still verify.
func (env *testEnv) totpCode(t *testing.T, userID string, offset int) string {
	t.Helper()
	user, err := env.users.GetByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	cfg := env.engine.config.TOTP
	counter := time.Now().Unix()/int64(cfg.Period) + int64(offset)
	code, err := hotpCode(user.OTPSecret, counter, cfg.Digits, cfg.Algorithm)
	if err != nil {
		t.Fatalf("compute totp code: %v", err)
	}
	return code
}

// enableTwoFactor walks the full setup flow and returns the backup codes.
// The confirming code occupies the replay guard, so later submissions must
// use a different period offset.
func (env *testEnv) enableTwoFactor(t *testing.T, userID string) []string {
	t.Helper()
	ctx := context.Background()
	if _, err := env.engine.BeginTwoFactorSetup(ctx, userID); err != nil {
		t.Fatalf("begin setup failed: %v", err)
	}
	codes, err := env.engine.ConfirmTwoFactorSetup(ctx, userID, env.totpCode(t, userID, 0))
	if err != nil {
		t.Fatalf("confirm setup failed: %v", err)
	}
	return codes
}

// registerActive creates a verified account ready for login tests.
func (env *testEnv) registerActive(t *testing.T, email, pw string) *User {
	t.Helper()
	user, err := env.engine.Register(context.Background(), email, pw)
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := env.users.Activate(context.Background(), user.ID, time.Now()); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	return user
}
