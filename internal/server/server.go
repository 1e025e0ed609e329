package server

import (
	"app/internal/config"
	"app/internal/handler"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

type Handlers struct {
	Auth        *handler.AuthHandler
	Flower      *handler.FlowerHandler
	Order       *handler.OrderHandler
	Payment     *handler.PaymentHandler
	Transaction *handler.TransactionHandler
}

// New はechoを組み立ててルートを登録する。起動はmain側。
func New(cfg config.Config, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	h.Auth.RegisterRoutes(e)
	h.Flower.RegisterRoutes(e, cfg)
	h.Order.RegisterRoutes(e, cfg)
	h.Payment.RegisterRoutes(e, cfg)
	h.Transaction.RegisterRoutes(e, cfg)

	return e
}
