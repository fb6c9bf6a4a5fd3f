package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/organoz/village-market/internal/model"
	"github.com/organoz/village-market/internal/store"
)

// fakeUserStore is an in-memory store.UserStore for service tests.
type fakeUserStore struct {
	users  map[string]model.User
	nextID int
	now    func() time.Time
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]model.User{}, now: time.Now}
}

func (f *fakeUserStore) Create(_ context.Context, u model.User) (model.User, error) {
	for _, existing := range f.users {
		if existing.TenantSlug == u.TenantSlug && existing.Phone == u.Phone {
			return model.User{}, store.ErrDuplicate
		}
	}
	f.nextID++
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	u.CreatedAt = f.now()
	u.UpdatedAt = u.CreatedAt
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) GetByIDs(_ context.Context, ids []string) ([]model.User, error) {
	var out []model.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUserStore) GetByPhone(_ context.Context, tenantSlug, phone string) (model.User, error) {
	for _, u := range f.users {
		if u.TenantSlug == tenantSlug && u.Phone == phone {
			return u, nil
		}
	}
	return model.User{}, store.ErrNotFound
}

func (f *fakeUserStore) GetByEmail(_ context.Context, tenantSlug, email string) (model.User, error) {
	for _, u := range f.users {
		if !strings.EqualFold(u.Email, email) {
			continue
		}
		if tenantSlug != "" && u.TenantSlug != tenantSlug {
			continue
		}
		return u, nil
	}
	return model.User{}, store.ErrNotFound
}

func (f *fakeUserStore) GetByResetToken(_ context.Context, email, token string) (model.User, error) {
	for _, u := range f.users {
		if !strings.EqualFold(u.Email, email) || u.ResetToken != token {
			continue
		}
		if u.ResetExpires == nil || f.now().After(*u.ResetExpires) {
			continue
		}
		return u, nil
	}
	return model.User{}, store.ErrNotFound
}

func (f *fakeUserStore) UpdateProfile(_ context.Context, id string, addr model.Address) (model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return model.User{}, store.ErrNotFound
	}
	u.Address = addr
	u.UpdatedAt = f.now()
	f.users[id] = u
	return u, nil
}

func (f *fakeUserStore) SetResetToken(_ context.Context, id, token string, expires time.Time) error {
	u, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.ResetToken = token
	u.ResetExpires = &expires
	f.users[id] = u
	return nil
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	u, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetToken = ""
	u.ResetExpires = nil
	f.users[id] = u
	return nil
}

func newTestService(t interface{ Fatalf(string, ...any) }, users store.UserStore, sender *inMemorySender) *Service {
	cfg := Config{
		Users:        users,
		Secret:       "super-secret-key",
		TokenTTL:     time.Minute,
		FrontendBase: "https://market.example",
	}
	if sender != nil {
		cfg.Sender = sender
	}
	svc, err := NewService(cfg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

// inMemorySender records outgoing mail for assertions.
type inMemorySender struct {
	sent []sentEmail
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

func (s *inMemorySender) Send(to, subject, html string) error {
	s.sent = append(s.sent, sentEmail{To: to, Subject: subject, Body: html})
	return nil
}
