package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/vharitonov/marketplace/internal/events"
	"github.com/vharitonov/marketplace/internal/logging"
	"github.com/vharitonov/marketplace/internal/models"
	"github.com/vharitonov/marketplace/internal/repo"
)

type CartService struct {
	Repo   *repo.GormRepo
	Events *events.Producer
}

// Add puts one unit of the product in the user's cart. The product must
// exist at insertion time; adding the same product again creates another
// row.
func (s *CartService) Add(ctx context.Context, userID, productID uint) (*models.CartItem, error) {
	l := logging.FromContext(ctx).With("svc", "cart.add")

	if _, err := s.Repo.ProductByID(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		l.Error("add_failed", "reason", "db error", "error", err)
		return nil, err
	}

	item := models.CartItem{UserID: userID, ProductID: productID}
	if err := s.Repo.AddCartItem(ctx, &item); err != nil {
		l.Error("add_failed", "reason", "db error", "error", err)
		return nil, err
	}

	if err := s.Events.Publish(ctx, events.TopicCart, fmt.Sprint(userID), map[string]any{
		"type":       "cart_item_added",
		"user_id":    userID,
		"product_id": productID,
	}); err != nil {
		l.Warn("event_publish_failed", "error", err)
	}

	return &item, nil
}

// List resolves the user's cart rows to products. Rows whose product has
// disappeared are dropped silently.
func (s *CartService) List(ctx context.Context, userID uint) ([]models.Product, error) {
	items, err := s.Repo.CartItems(ctx, userID)
	if err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(items))
	for _, item := range items {
		product, err := s.Repo.ProductByID(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		products = append(products, *product)
	}
	return products, nil
}

// Remove deletes at most one matching cart row. Returns false without
// error when nothing matched.
func (s *CartService) Remove(ctx context.Context, userID, productID uint) (bool, error) {
	l := logging.FromContext(ctx).With("svc", "cart.remove")

	removed, err := s.Repo.RemoveOneCartItem(ctx, userID, productID)
	if err != nil {
		l.Error("remove_failed", "reason", "db error", "error", err)
		return false, err
	}
	if !removed {
		return false, nil
	}

	if err := s.Events.Publish(ctx, events.TopicCart, fmt.Sprint(userID), map[string]any{
		"type":       "cart_item_removed",
		"user_id":    userID,
		"product_id": productID,
	}); err != nil {
		l.Warn("event_publish_failed", "error", err)
	}

	return true, nil
}
