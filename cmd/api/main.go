package main

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/orders/internal/app"
	"github.com/Additional-Code/orders/internal/logger"
)

func main() {
	fx.New(app.API, logger.FxEvents).Run()
}
