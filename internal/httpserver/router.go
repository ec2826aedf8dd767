package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vharitonov/marketplace/internal/session"
)

type Deps struct {
	AuthHandler    *AuthHandler
	ProductHandler *ProductHandler
	CartHandler    *CartHandler
	Session        *session.Middleware
	UploadDir      string
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.Static("/uploads", d.UploadDir)

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)

	authed := v1.Group("", d.Session.Require)
	authed.POST("/logout", d.AuthHandler.Logout)
	authed.GET("/dashboard", d.AuthHandler.Dashboard)

	authed.GET("/products", d.ProductHandler.GetProducts)
	authed.GET("/products/:id", d.ProductHandler.GetProduct)

	vendor := v1.Group("/vendor", d.Session.RequireVendor)
	vendor.POST("/products", d.ProductHandler.CreateProduct)
	vendor.GET("/products", d.ProductHandler.VendorProducts)
	vendor.DELETE("/products/:id", d.ProductHandler.DeleteProduct)

	cart := v1.Group("/cart", d.Session.Require)
	cart.GET("", d.CartHandler.GetCart)
	cart.POST("/:id", d.CartHandler.AddToCart)
	cart.DELETE("/:id", d.CartHandler.RemoveFromCart)
}
