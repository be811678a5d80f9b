// Package partnership governs accountability partnerships: invite codes,
// acceptance, revocation, and what a partner is allowed to read.
package partnership

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brk3/streakmate/internal/logger"
	"github.com/brk3/streakmate/internal/storage"
	"github.com/brk3/streakmate/pkg/habit"
	"github.com/google/uuid"
)

const (
	DefaultInviteTTL = 7 * 24 * time.Hour

	codeLength   = 8
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeAttempts = 5
)

type Engine struct {
	store   storage.Store
	ttl     time.Duration
	now     func() time.Time
	newCode func() (string, error)
}

func New(store storage.Store, inviteTTL time.Duration) *Engine {
	if inviteTTL <= 0 {
		inviteTTL = DefaultInviteTTL
	}
	return &Engine{store: store, ttl: inviteTTL, now: time.Now, newCode: GenerateCode}
}

// NewWithClock is New with a fixed time source, for tests.
func NewWithClock(store storage.Store, inviteTTL time.Duration, now func() time.Time) *Engine {
	e := New(store, inviteTTL)
	e.now = now
	return e
}

// GenerateCode returns a random invite code drawn from an alphabet without
// the easily confused 0/O and 1/I.
func GenerateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// NormalizeCode accepts codes typed in lower case or with surrounding
// whitespace.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create opens a PENDING partnership owned by ownerID with a fresh invite
// code valid for the engine's TTL.
func (e *Engine) Create(ctx context.Context, ownerID string) (habit.Partnership, error) {
	if ownerID == "" {
		return habit.Partnership{}, fmt.Errorf("owner id is required: %w", habit.ErrValidation)
	}

	now := e.now()
	expires := now.Add(e.ttl)
	p := habit.Partnership{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Status:          habit.PartnershipPending,
		InviteExpiresAt: &expires,
		CreatedAt:       now,
	}

	for attempt := 0; ; attempt++ {
		code, err := e.newCode()
		if err != nil {
			return habit.Partnership{}, fmt.Errorf("generate invite code: %w", err)
		}
		p.InviteCode = code
		err = e.store.Update(func(tx storage.Tx) error {
			return tx.PutPartnership(p)
		})
		if err == nil {
			break
		}
		if !errors.Is(err, storage.ErrDuplicateInviteCode) || attempt+1 >= codeAttempts {
			return habit.Partnership{}, err
		}
		logger.DebugContext(ctx, "Invite code collision, retrying", "attempt", attempt+1)
	}

	logger.InfoContext(ctx, "Created partnership invite", "partnership_id", p.ID, "owner_id", ownerID, "expires_at", expires)
	return p, nil
}

// Accept binds partnerID to the pending partnership behind code. An
// expired invite stays PENDING.
func (e *Engine) Accept(ctx context.Context, code, partnerID string) (habit.Partnership, error) {
	code = NormalizeCode(code)
	var p habit.Partnership
	err := e.store.Update(func(tx storage.Tx) error {
		var found bool
		var err error
		p, found, err = tx.GetPartnershipByCode(code)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("invite code: %w", habit.ErrNotFound)
		}

		// A used or revoked invite reports its state, not its age.
		if p.Status != habit.PartnershipPending {
			return fmt.Errorf("partnership %s is %s: %w", p.ID, p.Status, habit.ErrInvalidPartner)
		}
		now := e.now()
		if p.InviteExpiresAt != nil && now.After(*p.InviteExpiresAt) {
			return fmt.Errorf("invite for partnership %s: %w", p.ID, habit.ErrExpiredInvite)
		}
		if partnerID == "" || partnerID == p.OwnerID {
			return fmt.Errorf("cannot partner with yourself: %w", habit.ErrInvalidPartner)
		}

		p.PartnerID = partnerID
		p.Status = habit.PartnershipActive
		p.AcceptedAt = &now
		return tx.PutPartnership(p)
	})
	if err != nil {
		logger.WarnContext(ctx, "Invite accept rejected", "partner_id", partnerID, "error", err)
		return habit.Partnership{}, err
	}

	logger.InfoContext(ctx, "Accepted partnership", "partnership_id", p.ID, "owner_id", p.OwnerID, "partner_id", partnerID)
	return p, nil
}

// Revoke ends a partnership. Either side may revoke; revoking twice
// succeeds without changing the record.
func (e *Engine) Revoke(ctx context.Context, id, actorID string) (habit.Partnership, error) {
	return e.UpdateStatus(ctx, id, actorID, habit.PartnershipRevoked)
}

// UpdateStatus applies a caller-requested transition. REVOKED is the only
// target reachable this way; PENDING to ACTIVE happens through Accept.
func (e *Engine) UpdateStatus(ctx context.Context, id, actorID string, target habit.PartnershipStatus) (habit.Partnership, error) {
	var (
		p       habit.Partnership
		changed bool
	)
	err := e.store.Update(func(tx storage.Tx) error {
		var found bool
		var err error
		p, found, err = tx.GetPartnership(id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("partnership %q: %w", id, habit.ErrNotFound)
		}
		if !p.Involves(actorID) {
			return fmt.Errorf("user is not part of partnership %s: %w", id, habit.ErrInvalidPartner)
		}
		if target != habit.PartnershipRevoked {
			return fmt.Errorf("%s to %s: %w", p.Status, target, habit.ErrInvalidTransition)
		}
		if p.Status.Terminal() {
			return nil
		}

		now := e.now()
		p.Status = habit.PartnershipRevoked
		p.RevokedAt = &now
		changed = true
		return tx.PutPartnership(p)
	})
	if err != nil {
		return habit.Partnership{}, err
	}

	if changed {
		logger.InfoContext(ctx, "Revoked partnership", "partnership_id", id, "actor_id", actorID)
	}
	return p, nil
}

// List returns the partnerships userID owns or has accepted.
func (e *Engine) List(ctx context.Context, userID string) ([]habit.Partnership, error) {
	out := []habit.Partnership{}
	err := e.store.View(func(tx storage.Tx) error {
		ps, err := tx.ListPartnerships(userID)
		if err != nil {
			return err
		}
		out = append(out, ps...)
		return nil
	})
	return out, err
}

// PartnerView returns ownerID's shared, non-archived habits as seen by
// viewerID. It requires an ACTIVE partnership between the two, in either
// direction. RESISTANCE items are never included.
func (e *Engine) PartnerView(ctx context.Context, viewerID, ownerID string) ([]habit.SharedHabit, error) {
	out := []habit.SharedHabit{}
	err := e.store.View(func(tx storage.Tx) error {
		ok, err := activeBetween(tx, viewerID, ownerID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no active partnership with %s: %w", ownerID, habit.ErrNotFound)
		}

		habits, err := tx.ListHabits(ownerID)
		if err != nil {
			return err
		}
		for _, h := range habits {
			if h.IsArchived || !h.IsSharedWithPartner {
				continue
			}
			logs, err := tx.ListLogs(ownerID, h.ID)
			if err != nil {
				return err
			}
			items, err := storage.PartnerVisibleItems(tx, ownerID, h.ID)
			if err != nil {
				return err
			}
			if logs == nil {
				logs = []habit.DailyLog{}
			}
			out = append(out, habit.SharedHabit{Habit: h, Logs: logs, Items: items})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.DebugContext(ctx, "Served partner view", "viewer_id", viewerID, "owner_id", ownerID, "habits", len(out))
	return out, nil
}

func activeBetween(tx storage.Tx, a, b string) (bool, error) {
	if a == "" || b == "" || a == b {
		return false, nil
	}
	ps, err := tx.ListPartnerships(a)
	if err != nil {
		return false, err
	}
	for _, p := range ps {
		if p.Status == habit.PartnershipActive && p.Involves(b) {
			return true, nil
		}
	}
	return false, nil
}
