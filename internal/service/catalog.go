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
	"github.com/vharitonov/marketplace/internal/upload"
)

type CatalogService struct {
	Repo   *repo.GormRepo
	Images *upload.Store
	Events *events.Producer
}

type CreateProductInput struct {
	Name        string
	Price       float64
	Description string
	Image       string
}

// Create adds a listing owned by the calling vendor. The role gate comes
// before input validation: a customer gets ErrForbidden no matter what
// they send.
func (s *CatalogService) Create(ctx context.Context, vendorID uint, role models.Role, in CreateProductInput) (*models.Product, error) {
	l := logging.FromContext(ctx).With("svc", "catalog.create")

	if role != models.RoleVendor {
		return nil, fmt.Errorf("only vendors can list products: %w", ErrForbidden)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("name is required: %w", ErrValidation)
	}
	if in.Price < 0 {
		return nil, fmt.Errorf("price cannot be negative: %w", ErrValidation)
	}

	product := models.Product{
		Name:        in.Name,
		Price:       in.Price,
		Description: in.Description,
		Image:       in.Image,
		VendorID:    vendorID,
	}
	if err := s.Repo.CreateProduct(ctx, &product); err != nil {
		l.Error("create_failed", "reason", "db error", "error", err)
		return nil, err
	}

	if err := s.Events.Publish(ctx, events.TopicProducts, fmt.Sprint(vendorID), map[string]any{
		"type":       "product_created",
		"product_id": product.ID,
		"vendor_id":  vendorID,
		"name":       product.Name,
	}); err != nil {
		l.Warn("event_publish_failed", "error", err)
	}

	l.Info("create_success", "product_id", product.ID, "vendor_id", vendorID)
	return &product, nil
}

func (s *CatalogService) Get(ctx context.Context, id uint) (*models.Product, error) {
	product, err := s.Repo.ProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *CatalogService) ListAll(ctx context.Context) ([]models.Product, error) {
	return s.Repo.Products(ctx)
}

func (s *CatalogService) ListByVendor(ctx context.Context, vendorID uint, role models.Role) ([]models.Product, error) {
	if role != models.RoleVendor {
		return nil, fmt.Errorf("only vendors have listings: %w", ErrForbidden)
	}
	return s.Repo.ProductsByVendor(ctx, vendorID)
}

// Delete removes a product the requester owns. The record and its cart
// rows go in one transaction; the image file is removed afterwards,
// best-effort, so a file-system failure never resurrects the row.
func (s *CatalogService) Delete(ctx context.Context, requesterID, productID uint) error {
	l := logging.FromContext(ctx).With("svc", "catalog.delete")

	product, err := s.Repo.ProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		l.Error("delete_failed", "reason", "db error", "error", err)
		return err
	}
	if product.VendorID != requesterID {
		l.Warn("delete_forbidden", "product_id", productID, "requester_id", requesterID)
		return fmt.Errorf("product belongs to another vendor: %w", ErrForbidden)
	}

	if err := s.Repo.DeleteProduct(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		l.Error("delete_failed", "reason", "db error", "error", err)
		return err
	}

	if product.Image != "" {
		if err := s.Images.Remove(product.Image); err != nil {
			l.Warn("image_remove_failed", "image", product.Image, "error", err)
		}
	}

	if err := s.Events.Publish(ctx, events.TopicProducts, fmt.Sprint(requesterID), map[string]any{
		"type":       "product_deleted",
		"product_id": productID,
		"vendor_id":  requesterID,
	}); err != nil {
		l.Warn("event_publish_failed", "error", err)
	}

	l.Info("delete_success", "product_id", productID)
	return nil
}
