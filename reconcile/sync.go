package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dipakchaulagain/NetAuthVPN/directory"
	"github.com/dipakchaulagain/NetAuthVPN/ippool"
	"github.com/dipakchaulagain/NetAuthVPN/model"
	"github.com/dipakchaulagain/NetAuthVPN/radius"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrSyncInProgress rejects a second sync while one is running; two
// concurrent syncs would race on the allocator.
var ErrSyncInProgress = errors.New("directory sync already in progress")

// Syncer diffs the directory user set against stored VPN users and applies
// the reconciliation transitions. Directory absence never deactivates a
// user; a directory outage must not mass-deprovision access.
type Syncer struct {
	db     *gorm.DB
	pool   *ippool.Pool
	source directory.Source
	radius *radius.Manager
	log    *zap.Logger
	mu     sync.Mutex
}

func NewSyncer(db *gorm.DB, pool *ippool.Pool, source directory.Source, rad *radius.Manager, log *zap.Logger) *Syncer {
	return &Syncer{db: db, pool: pool, source: source, radius: rad, log: log}
}

type UserError struct {
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

// Result is the partial-success summary of one sync run. Failures of
// individual users never roll back users already committed.
type Result struct {
	Created   int         `json:"created"`
	Updated   int         `json:"updated"`
	Unchanged int         `json:"unchanged"`
	Stale     int         `json:"stale"`
	Failed    int         `json:"failed"`
	Errors    []UserError `json:"errors,omitempty"`
}

func (r *Result) Summary() string {
	return fmt.Sprintf("created=%d updated=%d unchanged=%d stale=%d failed=%d",
		r.Created, r.Updated, r.Unchanged, r.Stale, r.Failed)
}

// Run performs one sync. The directory fetch happens before any row write
// and outside any transaction; each user's creation is independently atomic.
func (s *Syncer) Run(ctx context.Context) (*Result, error) {
	if !s.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer s.mu.Unlock()

	users, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	present := make(map[string]struct{}, len(users))

	for _, u := range users {
		username := strings.ToLower(u.Username)
		present[username] = struct{}{}

		var existing model.VPNUser
		err := s.db.Where("lower(user_name) = ?", username).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := s.create(username, u); err != nil {
				result.Failed++
				result.Errors = append(result.Errors, UserError{Username: username, Reason: err.Error()})
				s.log.Warn("sync: user creation failed",
					zap.String("username", username),
					zap.Error(err))
				continue
			}
			result.Created++

		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, UserError{Username: username, Reason: err.Error()})

		case !existing.Active:
			// Deliberately disabled accounts are not silently
			// reactivated by sync.
			result.Unchanged++

		default:
			changed, err := s.update(&existing, u)
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, UserError{Username: username, Reason: err.Error()})
				continue
			}
			if changed {
				result.Updated++
			} else {
				result.Unchanged++
			}
		}
	}

	stale, err := s.staleUsers(present)
	if err == nil {
		result.Stale = len(stale)
		for _, username := range stale {
			s.log.Warn("sync: active user missing from directory",
				zap.String("username", username))
		}
	}

	s.log.Info("directory sync finished", zap.String("summary", result.Summary()))
	return result, nil
}

// create allocates an address and writes the user row plus its RADIUS
// projection in one transaction.
func (s *Syncer) create(username string, u directory.User) error {
	now := time.Now().UTC()
	_, err := s.pool.Allocate(func(tx *gorm.DB, addr string) error {
		user := model.VPNUser{
			ID:              uuid.New().String(),
			UserName:        username,
			FullName:        u.FullName,
			Email:           u.Email,
			IPAddress:       addr,
			DirectorySynced: true,
			LastSync:        &now,
			Active:          true,
		}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if err := s.radius.SetUserIP(tx, username, addr); err != nil {
			return err
		}
		return s.radius.SetAccountStatus(tx, username, true)
	})
	return err
}

func (s *Syncer) update(existing *model.VPNUser, u directory.User) (bool, error) {
	now := time.Now().UTC()
	changed := existing.FullName != u.FullName || existing.Email != u.Email

	updates := map[string]any{
		"directory_synced": true,
		"last_sync":        &now,
	}
	if changed {
		updates["full_name"] = u.FullName
		updates["email"] = u.Email
	}

	if err := s.db.Model(existing).Updates(updates).Error; err != nil {
		return false, err
	}

	return changed, nil
}

func (s *Syncer) staleUsers(present map[string]struct{}) ([]string, error) {
	var usernames []string
	err := s.db.Model(&model.VPNUser{}).
		Where("active = ? AND directory_synced = ?", true, true).
		Pluck("user_name", &usernames).Error
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, name := range usernames {
		if _, ok := present[strings.ToLower(name)]; !ok {
			stale = append(stale, name)
		}
	}

	return stale, nil
}
