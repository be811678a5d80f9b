package tracker

import (
	"context"
	"fmt"

	"github.com/brk3/streakmate/internal/logger"
	"github.com/brk3/streakmate/internal/storage"
	"github.com/brk3/streakmate/pkg/habit"
	"github.com/google/uuid"
)

// AddItem appends an item to the end of its type's list.
func (s *Service) AddItem(ctx context.Context, userID, habitID string, typ habit.ItemType, content string) (habit.ListItem, error) {
	content, err := validateContent(content)
	if err != nil {
		return habit.ListItem{}, err
	}

	var it habit.ListItem
	err = s.store.Update(func(tx storage.Tx) error {
		if _, err := mustHabit(tx, userID, habitID); err != nil {
			return err
		}
		siblings, err := itemsOfType(tx, userID, habitID, typ)
		if err != nil {
			return err
		}
		it = habit.ListItem{
			ID:         uuid.NewString(),
			HabitID:    habitID,
			Type:       typ,
			Content:    content,
			OrderIndex: len(siblings),
			CreatedAt:  s.now(),
		}
		return tx.PutItem(userID, it)
	})
	if err != nil {
		return habit.ListItem{}, err
	}

	logger.InfoContext(ctx, "Added list item", "user_id", userID, "habit_id", habitID, "item_id", it.ID, "type", typ)
	return it, nil
}

// ListItems returns the owner's items, optionally restricted to one type.
// This includes RESISTANCE items and must not back a partner-facing read.
func (s *Service) ListItems(ctx context.Context, userID, habitID string, typ *habit.ItemType) ([]habit.ListItem, error) {
	out := []habit.ListItem{}
	err := s.store.View(func(tx storage.Tx) error {
		if _, err := mustHabit(tx, userID, habitID); err != nil {
			return err
		}
		items, err := tx.ListItems(userID, habitID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if typ != nil && it.Type != *typ {
				continue
			}
			out = append(out, it)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	storage.SortItems(out)
	return out, nil
}

// RemoveItem deletes an item and closes the gap it leaves in the order.
func (s *Service) RemoveItem(ctx context.Context, userID, habitID, itemID string) error {
	err := s.store.Update(func(tx storage.Tx) error {
		items, err := tx.ListItems(userID, habitID)
		if err != nil {
			return err
		}
		var target *habit.ListItem
		for i := range items {
			if items[i].ID == itemID {
				target = &items[i]
				break
			}
		}
		if target == nil {
			return fmt.Errorf("list item %q: %w", itemID, habit.ErrNotFound)
		}
		if err := tx.DeleteItem(userID, habitID, itemID); err != nil {
			return err
		}
		rest, err := itemsOfType(tx, userID, habitID, target.Type)
		if err != nil {
			return err
		}
		return renumber(tx, userID, rest)
	})
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "Removed list item", "user_id", userID, "habit_id", habitID, "item_id", itemID)
	return nil
}

// ReorderItems sets the order of one type's items. ids must name every item
// of that type exactly once.
func (s *Service) ReorderItems(ctx context.Context, userID, habitID string, typ habit.ItemType, ids []string) ([]habit.ListItem, error) {
	var out []habit.ListItem
	err := s.store.Update(func(tx storage.Tx) error {
		if _, err := mustHabit(tx, userID, habitID); err != nil {
			return err
		}
		current, err := itemsOfType(tx, userID, habitID, typ)
		if err != nil {
			return err
		}
		if len(ids) != len(current) {
			return fmt.Errorf("expected %d item ids, got %d: %w", len(current), len(ids), habit.ErrValidation)
		}
		byID := make(map[string]habit.ListItem, len(current))
		for _, it := range current {
			byID[it.ID] = it
		}
		out = make([]habit.ListItem, 0, len(ids))
		for _, id := range ids {
			it, ok := byID[id]
			if !ok {
				return fmt.Errorf("item %q is not a %s item of this habit or is repeated: %w", id, typ, habit.ErrValidation)
			}
			delete(byID, id)
			out = append(out, it)
		}
		return renumber(tx, userID, out)
	})
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Reordered list items", "user_id", userID, "habit_id", habitID, "type", typ, "count", len(out))
	return out, nil
}

func itemsOfType(tx storage.Tx, userID, habitID string, typ habit.ItemType) ([]habit.ListItem, error) {
	items, err := tx.ListItems(userID, habitID)
	if err != nil {
		return nil, err
	}
	out := make([]habit.ListItem, 0, len(items))
	for _, it := range items {
		if it.Type == typ {
			out = append(out, it)
		}
	}
	storage.SortItems(out)
	return out, nil
}

// renumber writes 0..n-1 order indexes following the slice order.
func renumber(tx storage.Tx, userID string, items []habit.ListItem) error {
	for i := range items {
		if items[i].OrderIndex == i {
			continue
		}
		items[i].OrderIndex = i
		if err := tx.PutItem(userID, items[i]); err != nil {
			return err
		}
	}
	return nil
}
