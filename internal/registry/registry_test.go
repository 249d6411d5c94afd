package registry

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Awuah-B/report-bot/internal/domain"
	"github.com/Awuah-B/report-bot/internal/logger"
	"github.com/Awuah-B/report-bot/internal/store"
	"github.com/Awuah-B/report-bot/internal/store/schema"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

// fakeSubscriptionStore keeps subscriptions in memory
type fakeSubscriptionStore struct {
	store.Store
	subs map[string]schema.Subscription
}

func newFakeSubscriptionStore() *fakeSubscriptionStore {
	return &fakeSubscriptionStore{subs: map[string]schema.Subscription{}}
}

func (f *fakeSubscriptionStore) CreateSubscription(_ context.Context, chatID, actorID string) error {
	if _, ok := f.subs[chatID]; ok {
		return domain.ErrAlreadySubscribed
	}
	f.subs[chatID] = schema.Subscription{ChatID: chatID, SubscribedBy: actorID, CreatedAt: time.Now()}
	return nil
}

func (f *fakeSubscriptionStore) DeleteSubscription(_ context.Context, chatID string) error {
	if _, ok := f.subs[chatID]; !ok {
		return domain.ErrNotSubscribed
	}
	delete(f.subs, chatID)
	return nil
}

func (f *fakeSubscriptionStore) ListSubscriptions(_ context.Context) ([]schema.Subscription, error) {
	out := make([]schema.Subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		out = append(out, sub)
	}
	return out, nil
}

func (f *fakeSubscriptionStore) IsSubscribed(_ context.Context, chatID string) (bool, error) {
	_, ok := f.subs[chatID]
	return ok, nil
}

// fakeAuthorizer answers from a fixed admin set
type fakeAuthorizer struct {
	admins map[string]bool
	err    error
}

func (f *fakeAuthorizer) IsAdmin(_ context.Context, _, actorID string) (bool, error) {
	return f.admins[actorID], f.err
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("admin can subscribe a chat", func(t *testing.T) {
		st := newFakeSubscriptionStore()
		reg := New(st, &fakeAuthorizer{admins: map[string]bool{"7": true}}, nil)

		require.NoError(t, reg.Subscribe(ctx, "-100", "7"))

		subscribed, err := reg.IsSubscribed(ctx, "-100")
		require.NoError(t, err)
		assert.True(t, subscribed)
	})

	t.Run("non-admin is denied and state is unchanged", func(t *testing.T) {
		st := newFakeSubscriptionStore()
		reg := New(st, &fakeAuthorizer{admins: map[string]bool{}}, nil)

		err := reg.Subscribe(ctx, "-100", "9")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		assert.Empty(t, st.subs)
	})

	t.Run("superadmin bypasses the authorizer", func(t *testing.T) {
		st := newFakeSubscriptionStore()
		reg := New(st, &fakeAuthorizer{admins: map[string]bool{}}, []string{"1"})

		require.NoError(t, reg.Subscribe(ctx, "-100", "1"))
	})

	t.Run("duplicate subscription surfaces", func(t *testing.T) {
		st := newFakeSubscriptionStore()
		reg := New(st, nil, []string{"1"})

		require.NoError(t, reg.Subscribe(ctx, "-100", "1"))
		err := reg.Subscribe(ctx, "-100", "1")
		assert.ErrorIs(t, err, domain.ErrAlreadySubscribed)
	})

	t.Run("authorizer failure denies without mutating", func(t *testing.T) {
		st := newFakeSubscriptionStore()
		reg := New(st, &fakeAuthorizer{err: errors.New("api down")}, nil)

		err := reg.Subscribe(ctx, "-100", "7")
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrUnauthorized)
		assert.Empty(t, st.subs)
	})
}

func TestUnsubscribe(t *testing.T) {
	ctx := context.Background()

	t.Run("admin can unsubscribe", func(t *testing.T) {
		st := newFakeSubscriptionStore()
		reg := New(st, nil, []string{"1"})

		require.NoError(t, reg.Subscribe(ctx, "-100", "1"))
		require.NoError(t, reg.Unsubscribe(ctx, "-100", "1"))
		assert.Empty(t, st.subs)
	})

	t.Run("non-admin is denied and membership survives", func(t *testing.T) {
		st := newFakeSubscriptionStore()
		reg := New(st, &fakeAuthorizer{admins: map[string]bool{}}, []string{"1"})

		require.NoError(t, reg.Subscribe(ctx, "-100", "1"))

		err := reg.Unsubscribe(ctx, "-100", "9")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)

		subscribed, err := reg.IsSubscribed(ctx, "-100")
		require.NoError(t, err)
		assert.True(t, subscribed)
	})

	t.Run("absent chat surfaces", func(t *testing.T) {
		reg := New(newFakeSubscriptionStore(), nil, []string{"1"})

		err := reg.Unsubscribe(ctx, "-404", "1")
		assert.ErrorIs(t, err, domain.ErrNotSubscribed)
	})
}

func TestEvict(t *testing.T) {
	ctx := context.Background()
	st := newFakeSubscriptionStore()
	reg := New(st, nil, []string{"1"})

	require.NoError(t, reg.Subscribe(ctx, "-100", "1"))

	// Eviction needs no actor
	require.NoError(t, reg.Evict(ctx, "-100"))
	assert.Empty(t, st.subs)

	// Evicting an already-absent chat is a no-op
	require.NoError(t, reg.Evict(ctx, "-100"))
}

func TestTargets(t *testing.T) {
	ctx := context.Background()
	st := newFakeSubscriptionStore()
	reg := New(st, nil, []string{"1"})

	require.NoError(t, reg.Subscribe(ctx, "-100", "1"))
	require.NoError(t, reg.Subscribe(ctx, "-200", "1"))

	targets, err := reg.Targets(ctx)
	require.NoError(t, err)
	assert.Len(t, targets, 2)
	for _, target := range targets {
		assert.Equal(t, "1", target.SubscribedBy)
		assert.False(t, target.SubscribedAt.IsZero())
	}
}
