package db

import (
	"os"
	"path/filepath"

	"github.com/dipakchaulagain/NetAuthVPN/config"
	"github.com/dipakchaulagain/NetAuthVPN/model"
	"github.com/dipakchaulagain/NetAuthVPN/util"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init() {
	path := config.CONFIG.Database.Path
	if path == "" {
		path = "data/data.db"
	}

	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if os.MkdirAll(dir, 0700) != nil {
			panic("failed to create data directory")
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		panic("failed to connect database")
	}

	err = DB.AutoMigrate(
		&model.PortalUser{},
		&model.VPNUser{},
		&model.VPNUserRoute{},
		&model.SecurityRule{},
		&model.DNSRecord{},
		&model.AuditLog{},
		&model.RadReply{},
		&model.RadCheck{},
	)
	if err != nil {
		panic("failed to migrate database: " + err.Error())
	}

	var count int64
	DB.Model(&model.PortalUser{}).Count(&count)
	if count == 0 {
		DB.Create(&model.PortalUser{
			ID:       uuid.New().String(),
			UserName: "admin",
			PassWord: util.HashPassword("admin"),
			FullName: "Administrator",
			Role:     model.RoleAdministrator,
			Active:   true,
		})
	}
}
