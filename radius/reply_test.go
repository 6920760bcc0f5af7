package radius

import (
	"testing"

	"github.com/dipakchaulagain/NetAuthVPN/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestManager(t *testing.T) (*Manager, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.RadReply{}, &model.RadCheck{}))

	return NewManager(db, zap.NewNop()), db
}

func TestSetUserIPUpserts(t *testing.T) {
	m, db := newTestManager(t)

	require.NoError(t, m.SetUserIP(nil, "alice", "10.8.0.1"))
	require.NoError(t, m.SetUserIP(nil, "alice", "10.8.0.9"))

	var rows []model.RadReply
	require.NoError(t, db.Where("username = ?", "alice").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "Framed-IP-Address", rows[0].Attribute)
	assert.Equal(t, ":=", rows[0].Op)
	assert.Equal(t, "10.8.0.9", rows[0].Value)
}

func TestSetAccountStatus(t *testing.T) {
	m, db := newTestManager(t)

	require.NoError(t, m.SetAccountStatus(nil, "alice", true))
	require.NoError(t, m.SetAccountStatus(nil, "alice", false))

	var rows []model.RadCheck
	require.NoError(t, db.Where("username = ?", "alice").Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, "Auth-Type", rows[0].Attribute)
	assert.Equal(t, "Reject", rows[0].Value)
}

func TestAddRouteSkipsDuplicates(t *testing.T) {
	m, db := newTestManager(t)

	require.NoError(t, m.AddRoute(nil, "alice", "192.168.10.0/24"))
	require.NoError(t, m.AddRoute(nil, "alice", "192.168.10.0/24"))

	var count int64
	require.NoError(t, db.Model(&model.RadReply{}).
		Where("username = ? AND attribute = ?", "alice", "Framed-Route").
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSyncRoutesReconciles(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.AddRoute(nil, "alice", "192.168.10.0/24"))
	require.NoError(t, m.AddRoute(nil, "alice", "192.168.20.0/24"))

	require.NoError(t, m.SyncRoutes("alice", []string{"192.168.20.0/24", "192.168.30.0/24"}))

	rows, err := m.UserAttributes("alice")
	require.NoError(t, err)

	var values []string
	for _, row := range rows {
		if row.Attribute == "Framed-Route" {
			values = append(values, row.Value)
			assert.Equal(t, "+=", row.Op)
		}
	}
	assert.ElementsMatch(t, []string{"192.168.20.0/24", "192.168.30.0/24"}, values)
}

func TestRemoveUserDropsAllRows(t *testing.T) {
	m, db := newTestManager(t)

	require.NoError(t, m.SetUserIP(nil, "alice", "10.8.0.1"))
	require.NoError(t, m.SetAccountStatus(nil, "alice", true))
	require.NoError(t, m.AddRoute(nil, "alice", "192.168.10.0/24"))

	require.NoError(t, m.RemoveUser("alice"))

	var replies, checks int64
	db.Model(&model.RadReply{}).Where("username = ?", "alice").Count(&replies)
	db.Model(&model.RadCheck{}).Where("username = ?", "alice").Count(&checks)
	assert.Zero(t, replies)
	assert.Zero(t, checks)
}
