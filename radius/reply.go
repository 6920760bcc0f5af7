package radius

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dipakchaulagain/NetAuthVPN/model"
)

// Reply attributes this portal owns in the shared RADIUS tables.
const (
	attrFramedIP    = "Framed-IP-Address"
	attrFramedRoute = "Framed-Route"
	attrAuthType    = "Auth-Type"
)

// Manager projects VPN user policy into the radreply/radcheck tables that
// the RADIUS daemon reads at authentication time.
type Manager struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewManager(db *gorm.DB, log *zap.Logger) *Manager {
	return &Manager{db: db, log: log}
}

// SetUserIP upserts the Framed-IP-Address reply row for a user. This is what
// pins the pooled address to the authenticated session.
func (m *Manager) SetUserIP(tx *gorm.DB, username, ip string) error {
	if tx == nil {
		tx = m.db
	}

	var existing model.RadReply
	err := tx.Where("username = ? AND attribute = ?", username, attrFramedIP).
		First(&existing).Error
	switch {
	case err == nil:
		return tx.Model(&existing).Update("value", ip).Error
	case err == gorm.ErrRecordNotFound:
		return tx.Create(&model.RadReply{
			UserName:  username,
			Attribute: attrFramedIP,
			Op:        ":=",
			Value:     ip,
		}).Error
	default:
		return err
	}
}

// SetAccountStatus upserts the radcheck Auth-Type row: LDAP when the account
// is active, Reject when deactivated.
func (m *Manager) SetAccountStatus(tx *gorm.DB, username string, enabled bool) error {
	if tx == nil {
		tx = m.db
	}

	value := "Reject"
	if enabled {
		value = "LDAP"
	}

	var existing model.RadCheck
	err := tx.Where("username = ? AND attribute = ?", username, attrAuthType).
		First(&existing).Error
	switch {
	case err == nil:
		return tx.Model(&existing).Update("value", value).Error
	case err == gorm.ErrRecordNotFound:
		return tx.Create(&model.RadCheck{
			UserName:  username,
			Attribute: attrAuthType,
			Op:        ":=",
			Value:     value,
		}).Error
	default:
		return err
	}
}

// AddRoute adds a Framed-Route reply row. Routes are multi-valued, so the op
// is += and duplicates are skipped.
func (m *Manager) AddRoute(tx *gorm.DB, username, route string) error {
	if tx == nil {
		tx = m.db
	}

	var count int64
	err := tx.Model(&model.RadReply{}).
		Where("username = ? AND attribute = ? AND value = ?", username, attrFramedRoute, route).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return tx.Create(&model.RadReply{
		UserName:  username,
		Attribute: attrFramedRoute,
		Op:        "+=",
		Value:     route,
	}).Error
}

func (m *Manager) RemoveRoute(tx *gorm.DB, username, route string) error {
	if tx == nil {
		tx = m.db
	}

	return tx.Where("username = ? AND attribute = ? AND value = ?",
		username, attrFramedRoute, route).
		Delete(&model.RadReply{}).Error
}

// SyncRoutes reconciles the Framed-Route rows for a user against the given
// active route list: stale rows are deleted, missing ones added.
func (m *Manager) SyncRoutes(username string, routes []string) error {
	want := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		want[r] = struct{}{}
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		var existing []model.RadReply
		err := tx.Where("username = ? AND attribute = ?", username, attrFramedRoute).
			Find(&existing).Error
		if err != nil {
			return err
		}

		have := make(map[string]struct{}, len(existing))
		for _, row := range existing {
			if _, ok := want[row.Value]; !ok {
				if err := tx.Delete(&row).Error; err != nil {
					return err
				}
				continue
			}
			have[row.Value] = struct{}{}
		}

		for _, route := range routes {
			if _, ok := have[route]; ok {
				continue
			}
			err := tx.Create(&model.RadReply{
				UserName:  username,
				Attribute: attrFramedRoute,
				Op:        "+=",
				Value:     route,
			}).Error
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// RemoveUser drops every reply and check row for a username. Used only on
// explicit administrative removal, never by sync.
func (m *Manager) RemoveUser(username string) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("username = ?", username).Delete(&model.RadReply{}).Error; err != nil {
			return err
		}
		return tx.Where("username = ?", username).Delete(&model.RadCheck{}).Error
	})
}

// UserAttributes lists the reply rows for a username.
func (m *Manager) UserAttributes(username string) ([]model.RadReply, error) {
	var rows []model.RadReply
	err := m.db.Where("username = ?", username).Order("id").Find(&rows).Error
	return rows, err
}
