package background

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/dipakchaulagain/NetAuthVPN/db"
	"github.com/dipakchaulagain/NetAuthVPN/logger"

	"go.uber.org/zap"
)

func Init() {
	go gracefulExit()
}

func gracefulExit() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigs

	logger.L.Info("shutting down", zap.String("signal", sig.String()))

	dbConnection, err := db.DB.DB()
	if err != nil {
		panic("failed to get database connection")
	}

	if err := dbConnection.Close(); err != nil {
		panic("failed to close database connection")
	}

	logger.L.Info("server is down")
	logger.Sync()

	os.Exit(0)
}
