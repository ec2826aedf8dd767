package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/vharitonov/marketplace/internal/logging"
	"github.com/vharitonov/marketplace/internal/service"
	"github.com/vharitonov/marketplace/internal/session"
	"github.com/vharitonov/marketplace/internal/upload"
)

type ProductHandler struct {
	Svc    *service.CatalogService
	Images *upload.Store
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.list")

	items, err := h.Svc.ListAll(ctx)
	if err != nil {
		l.Error("list_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list products")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	product, err := h.Svc.Get(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot get product")
	}
	return c.JSON(http.StatusOK, product)
}

// CreateProduct consumes a multipart form: name, price, description and an
// optional image file.
func (h *ProductHandler) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.create")

	identity, ok := session.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	price, err := strconv.ParseFloat(c.FormValue("price"), 64)
	if err != nil {
		l.Warn("create_failed", "status", 400, "reason", "price not a number")
		return echo.NewHTTPError(http.StatusBadRequest, "price must be a number")
	}

	in := service.CreateProductInput{
		Name:        c.FormValue("name"),
		Price:       price,
		Description: c.FormValue("description"),
	}

	if file, err := c.FormFile("image"); err == nil {
		name, err := h.Images.Save(file)
		if err != nil {
			if errors.Is(err, upload.ErrBadFilename) {
				return echo.NewHTTPError(http.StatusBadRequest, "unusable image filename")
			}
			l.Error("create_failed", "status", 500, "reason", "cannot save image", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "cannot save image")
		}
		in.Image = name
	}

	product, err := h.Svc.Create(ctx, identity.UserID, identity.Role, in)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		case errors.Is(err, service.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot create product")
	}
	return c.JSON(http.StatusCreated, product)
}

func (h *ProductHandler) VendorProducts(c echo.Context) error {
	ctx := c.Request().Context()

	identity, ok := session.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	items, err := h.Svc.ListByVendor(ctx, identity.UserID, identity.Role)
	if err != nil {
		if errors.Is(err, service.ErrForbidden) {
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot list products")
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.delete")

	identity, ok := session.CurrentUser(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	id, err := parseID(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := h.Svc.Delete(ctx, identity.UserID, id); err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		case errors.Is(err, service.ErrForbidden):
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		l.Error("delete_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "cannot delete product")
	}
	return c.NoContent(http.StatusNoContent)
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return uint(id), nil
}
