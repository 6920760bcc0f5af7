package ippool

import (
	"fmt"
	"testing"

	"github.com/dipakchaulagain/NetAuthVPN/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.VPNUser{}))

	return db
}

func claimAsUser(username string) func(tx *gorm.DB, addr string) error {
	return func(tx *gorm.DB, addr string) error {
		return tx.Create(&model.VPNUser{
			ID:        uuid.New().String(),
			UserName:  username,
			IPAddress: addr,
			Active:    true,
		}).Error
	}
}

func TestAllocateLowestFirst(t *testing.T) {
	db := openTestDB(t)
	pool, err := New(db, "10.8.0.0/24", nil)
	require.NoError(t, err)

	first, err := pool.Allocate(claimAsUser("alice"))
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.1", first)

	second, err := pool.Allocate(claimAsUser("bob"))
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.2", second)
}

func TestAllocateStrictlyIncreasingUntilExhausted(t *testing.T) {
	db := openTestDB(t)
	pool, err := New(db, "10.8.0.0/29", nil)
	require.NoError(t, err)

	// /29 has hosts .1 through .6; .0 and .7 are excluded.
	var got []string
	for i := 0; i < 6; i++ {
		addr, err := pool.Allocate(claimAsUser(fmt.Sprintf("user%d", i)))
		require.NoError(t, err)
		got = append(got, addr)
	}

	assert.Equal(t, []string{
		"10.8.0.1", "10.8.0.2", "10.8.0.3", "10.8.0.4", "10.8.0.5", "10.8.0.6",
	}, got)

	_, err = pool.Allocate(claimAsUser("overflow"))
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestAllocateSkipsReserved(t *testing.T) {
	db := openTestDB(t)
	pool, err := New(db, "10.8.0.0/24", []string{"10.8.0.1"})
	require.NoError(t, err)

	addr, err := pool.Allocate(claimAsUser("alice"))
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.2", addr)
}

func TestClaimFailureReleasesAddress(t *testing.T) {
	db := openTestDB(t)
	pool, err := New(db, "10.8.0.0/24", nil)
	require.NoError(t, err)

	_, err = pool.Allocate(func(tx *gorm.DB, addr string) error {
		return fmt.Errorf("claim rejected")
	})
	require.Error(t, err)

	// The failed claim must not leave the address occupied.
	addr, err := pool.Allocate(claimAsUser("alice"))
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.1", addr)
}

func TestDeactivatedUserFreesAddress(t *testing.T) {
	db := openTestDB(t)
	pool, err := New(db, "10.8.0.0/24", nil)
	require.NoError(t, err)

	_, err = pool.Allocate(claimAsUser("alice"))
	require.NoError(t, err)

	require.NoError(t, db.Model(&model.VPNUser{}).
		Where("user_name = ?", "alice").
		Update("active", false).Error)

	addr, err := pool.Allocate(claimAsUser("bob"))
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.1", addr)
}

func TestClaimExplicitAddress(t *testing.T) {
	db := openTestDB(t)
	pool, err := New(db, "10.8.0.0/24", []string{"10.8.0.254"})
	require.NoError(t, err)

	require.NoError(t, pool.Claim("10.8.0.40", claimAsUser("alice")))

	var alice model.VPNUser
	require.NoError(t, db.First(&alice, "user_name = ?", "alice").Error)
	assert.Equal(t, "10.8.0.40", alice.IPAddress)

	// The claimed address is occupied for both paths.
	assert.ErrorIs(t, pool.Claim("10.8.0.40", claimAsUser("bob")), ErrDuplicateAddress)
	addr, err := pool.Allocate(claimAsUser("carol"))
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.1", addr)

	assert.ErrorIs(t, pool.Claim("10.8.0.0", nil), ErrInvalidAddress)
	assert.ErrorIs(t, pool.Claim("10.8.0.255", nil), ErrInvalidAddress)
	assert.ErrorIs(t, pool.Claim("10.8.0.254", nil), ErrInvalidAddress)
	assert.ErrorIs(t, pool.Claim("192.168.1.5", nil), ErrInvalidAddress)
}

func TestClaimRejectsOccupiedWithoutRunningClaim(t *testing.T) {
	db := openTestDB(t)
	pool, err := New(db, "10.8.0.0/24", nil)
	require.NoError(t, err)

	// Occupancy committed by anyone else, with no CheckFree in sight, is
	// still seen: the claim transaction re-reads it.
	require.NoError(t, db.Create(&model.VPNUser{
		ID:        uuid.New().String(),
		UserName:  "holder",
		IPAddress: "10.8.0.9",
		Active:    true,
	}).Error)

	err = pool.Claim("10.8.0.9", func(tx *gorm.DB, addr string) error {
		t.Fatal("claim must not run for an occupied address")
		return nil
	})
	assert.ErrorIs(t, err, ErrDuplicateAddress)
}

func TestClaimFailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	pool, err := New(db, "10.8.0.0/24", nil)
	require.NoError(t, err)

	err = pool.Claim("10.8.0.5", func(tx *gorm.DB, addr string) error {
		return fmt.Errorf("claim rejected")
	})
	require.Error(t, err)

	require.NoError(t, pool.Claim("10.8.0.5", claimAsUser("alice")))
}

func TestCheckFree(t *testing.T) {
	db := openTestDB(t)
	pool, err := New(db, "10.8.0.0/24", nil)
	require.NoError(t, err)

	_, err = pool.Allocate(claimAsUser("alice"))
	require.NoError(t, err)

	assert.ErrorIs(t, pool.CheckFree("10.8.0.1"), ErrDuplicateAddress)
	assert.NoError(t, pool.CheckFree("10.8.0.2"))
	assert.Error(t, pool.CheckFree("10.8.0.0"))
	assert.Error(t, pool.CheckFree("10.8.0.255"))
	assert.Error(t, pool.CheckFree("192.168.1.5"))
}
