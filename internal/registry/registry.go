// Package registry manages the set of notification targets. Membership
// changes are admin-gated; every mutation is checked before any state
// changes.
package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Awuah-B/report-bot/internal/domain"
	"github.com/Awuah-B/report-bot/internal/logger"
	"github.com/Awuah-B/report-bot/internal/store"
)

// Authorizer answers whether an actor may manage a chat's subscription.
// The Telegram transport implements it via chat-member lookup.
type Authorizer interface {
	IsAdmin(ctx context.Context, chatID, actorID string) (bool, error)
}

// Registry is the subscription registry. Superadmin IDs from configuration
// bypass the Authorizer.
type Registry struct {
	store       store.Store
	auth        Authorizer
	superadmins map[string]struct{}
}

// New creates a subscription registry
func New(st store.Store, auth Authorizer, superadminIDs []string) *Registry {
	admins := make(map[string]struct{}, len(superadminIDs))
	for _, id := range superadminIDs {
		admins[id] = struct{}{}
	}
	return &Registry{
		store:       st,
		auth:        auth,
		superadmins: admins,
	}
}

// Subscribe registers chatID as a notification target on behalf of actorID.
// Returns domain.ErrUnauthorized without touching state when the actor is not
// an admin, and domain.ErrAlreadySubscribed when the chat is already
// registered.
func (r *Registry) Subscribe(ctx context.Context, chatID, actorID string) error {
	if err := r.authorize(ctx, chatID, actorID); err != nil {
		return err
	}

	if err := r.store.CreateSubscription(ctx, chatID, actorID); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "chat subscribed",
		zap.String("chatID", chatID),
		zap.String("actorID", actorID))
	return nil
}

// Unsubscribe removes chatID from the notification targets on behalf of
// actorID. Returns domain.ErrUnauthorized without touching state when the
// actor is not an admin, and domain.ErrNotSubscribed when the chat is not
// registered.
func (r *Registry) Unsubscribe(ctx context.Context, chatID, actorID string) error {
	if err := r.authorize(ctx, chatID, actorID); err != nil {
		return err
	}

	if err := r.store.DeleteSubscription(ctx, chatID); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "chat unsubscribed",
		zap.String("chatID", chatID),
		zap.String("actorID", actorID))
	return nil
}

// Evict removes chatID without authorization. It is the permanent-delivery-
// failure path: the target no longer exists or has blocked the bot, so no
// actor is involved. Eviction of an already-absent chat is a no-op.
func (r *Registry) Evict(ctx context.Context, chatID string) error {
	err := r.store.DeleteSubscription(ctx, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotSubscribed) {
			return nil
		}
		return fmt.Errorf("failed to evict subscription: %w", err)
	}

	logger.WarnCtx(ctx, "chat evicted from subscriptions", zap.String("chatID", chatID))
	return nil
}

// Targets returns every current notification destination.
func (r *Registry) Targets(ctx context.Context) ([]domain.SubscriptionTarget, error) {
	subs, err := r.store.ListSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	targets := make([]domain.SubscriptionTarget, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, domain.SubscriptionTarget{
			ChatID:       sub.ChatID,
			SubscribedBy: sub.SubscribedBy,
			SubscribedAt: sub.CreatedAt,
		})
	}
	return targets, nil
}

// IsSubscribed reports whether chatID is a current target.
func (r *Registry) IsSubscribed(ctx context.Context, chatID string) (bool, error) {
	return r.store.IsSubscribed(ctx, chatID)
}

func (r *Registry) authorize(ctx context.Context, chatID, actorID string) error {
	if _, ok := r.superadmins[actorID]; ok {
		return nil
	}

	if r.auth == nil {
		return domain.ErrUnauthorized
	}

	admin, err := r.auth.IsAdmin(ctx, chatID, actorID)
	if err != nil {
		return fmt.Errorf("failed to check admin status: %w", err)
	}
	if !admin {
		return domain.ErrUnauthorized
	}
	return nil
}
