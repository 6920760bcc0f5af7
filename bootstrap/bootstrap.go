package bootstrap

import (
	"github.com/dipakchaulagain/NetAuthVPN/background"
	"github.com/dipakchaulagain/NetAuthVPN/config"
	"github.com/dipakchaulagain/NetAuthVPN/db"
	"github.com/dipakchaulagain/NetAuthVPN/logger"
	"github.com/dipakchaulagain/NetAuthVPN/router"
)

func Run() {
	config.Init()

	logger.Init(config.CONFIG.Server.Debug)

	db.Init()

	background.Init()

	router.Init()

	router.Run()
}
