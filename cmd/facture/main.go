package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/facture/internal/config"
	"github.com/smallbiznis/facture/internal/customer"
	"github.com/smallbiznis/facture/internal/invoice"
	"github.com/smallbiznis/facture/internal/logger"
	"github.com/smallbiznis/facture/internal/migration"
	"github.com/smallbiznis/facture/internal/providers/pdf"
	"github.com/smallbiznis/facture/internal/server"
	"github.com/smallbiznis/facture/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		migration.Module,

		customer.Module,
		pdf.Module,
		invoice.Module,
		server.Module,
	)
	app.Run()
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
