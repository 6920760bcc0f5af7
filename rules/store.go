package rules

import (
	"errors"
	"fmt"

	"github.com/dipakchaulagain/NetAuthVPN/model"
	"github.com/dipakchaulagain/NetAuthVPN/radius"
	"github.com/dipakchaulagain/NetAuthVPN/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidCIDR     = errors.New("invalid cidr")
	ErrInvalidPort     = errors.New("invalid port")
	ErrInvalidProtocol = errors.New("invalid protocol")
	ErrInvalidAction   = errors.New("invalid action")
	ErrRouteNotOwned   = errors.New("route does not belong to user")
	ErrDuplicateRoute  = errors.New("route already exists for user")
	ErrNotFound        = errors.New("record not found")
)

// Store owns per-user routes and security rules. Every write validates its
// input and the route-ownership invariant before touching the database;
// removal disables rows instead of deleting them so the audit trail stays
// reconstructible.
type Store struct {
	db     *gorm.DB
	radius *radius.Manager
	log    *zap.Logger
}

func NewStore(db *gorm.DB, rad *radius.Manager, log *zap.Logger) *Store {
	return &Store{db: db, radius: rad, log: log}
}

// AddRoute validates the CIDR, stores the route and projects it as a
// Framed-Route reply row in one transaction.
func (s *Store) AddRoute(userID, cidr, description string) (*model.VPNUserRoute, error) {
	if !util.ValidRoute(cidr) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCIDR, cidr)
	}

	var route model.VPNUserRoute
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user model.VPNUser
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %s", ErrNotFound, userID)
			}
			return err
		}

		var count int64
		err := tx.Model(&model.VPNUserRoute{}).
			Where("vpn_user_id = ? AND route = ? AND active = ?", userID, cidr, true).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateRoute, cidr)
		}

		route = model.VPNUserRoute{
			ID:          uuid.New().String(),
			VPNUserID:   userID,
			Route:       cidr,
			Description: description,
			Active:      true,
		}
		if err := tx.Create(&route).Error; err != nil {
			return err
		}

		return s.radius.AddRoute(tx, user.UserName, cidr)
	})
	if err != nil {
		return nil, err
	}

	return &route, nil
}

// RemoveRoute disables a route and every rule that references it, and drops
// the Framed-Route row. Dependent rules become inactive, not deleted.
func (s *Store) RemoveRoute(userID, routeID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var route model.VPNUserRoute
		if err := tx.First(&route, "id = ?", routeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: route %s", ErrNotFound, routeID)
			}
			return err
		}
		if route.VPNUserID != userID {
			return ErrRouteNotOwned
		}

		var user model.VPNUser
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			return err
		}

		if err := tx.Model(&route).Update("active", false).Error; err != nil {
			return err
		}

		err := tx.Model(&model.SecurityRule{}).
			Where("route_id = ? AND active = ?", routeID, true).
			Update("active", false).Error
		if err != nil {
			return err
		}

		return s.radius.RemoveRoute(tx, user.UserName, route.Route)
	})
}

func (s *Store) Routes(userID string) ([]model.VPNUserRoute, error) {
	var routes []model.VPNUserRoute
	err := s.db.Where("vpn_user_id = ? AND active = ?", userID, true).
		Order("created_at").Find(&routes).Error
	return routes, err
}

// AddRule validates protocol, port and action, then checks that the
// referenced route is one of the user's own active routes. The ownership
// check is by route identity, not by CIDR string, so a matching CIDR on
// another user's route still fails.
func (s *Store) AddRule(userID, routeID, protocol, port, action, description string) (*model.SecurityRule, error) {
	if protocol == "" {
		protocol = model.ProtocolAny
	}
	if action == "" {
		action = model.ActionAccept
	}

	if !util.ValidProtocol(protocol) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProtocol, protocol)
	}
	if !util.ValidAction(action) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if port != "" && protocol != model.ProtocolTCP && protocol != model.ProtocolUDP {
		return nil, fmt.Errorf("%w: port is only meaningful for tcp/udp", ErrInvalidPort)
	}
	if !util.ValidPort(port) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPort, port)
	}

	var rule model.SecurityRule
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var route model.VPNUserRoute
		if err := tx.First(&route, "id = ?", routeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: route %s", ErrRouteNotOwned, routeID)
			}
			return err
		}
		if route.VPNUserID != userID || !route.Active {
			return ErrRouteNotOwned
		}

		var position int64
		err := tx.Model(&model.SecurityRule{}).
			Where("vpn_user_id = ?", userID).
			Count(&position).Error
		if err != nil {
			return err
		}

		rule = model.SecurityRule{
			ID:          uuid.New().String(),
			VPNUserID:   userID,
			RouteID:     route.ID,
			Route:       route.Route,
			Protocol:    protocol,
			Port:        port,
			Action:      action,
			Description: description,
			Position:    int(position) + 1,
			Active:      true,
			Enabled:     true,
		}
		return tx.Create(&rule).Error
	})
	if err != nil {
		return nil, err
	}

	return &rule, nil
}

// Rules returns a user's active rules in creation order, the order the
// compiler emits them.
func (s *Store) Rules(userID string) ([]model.SecurityRule, error) {
	var out []model.SecurityRule
	err := s.db.Where("vpn_user_id = ? AND active = ?", userID, true).
		Order("position").Find(&out).Error
	return out, err
}

// ToggleRule flips the enabled flag. Disabled rules stay stored but are not
// compiled.
func (s *Store) ToggleRule(ruleID string) (*model.SecurityRule, error) {
	var rule model.SecurityRule
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rule, "id = ? AND active = ?", ruleID, true).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: rule %s", ErrNotFound, ruleID)
			}
			return err
		}
		rule.Enabled = !rule.Enabled
		return tx.Model(&rule).Update("enabled", rule.Enabled).Error
	})
	if err != nil {
		return nil, err
	}

	return &rule, nil
}

// RemoveRule disables a rule, preserving it for audit.
func (s *Store) RemoveRule(ruleID string) (*model.SecurityRule, error) {
	var rule model.SecurityRule
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rule, "id = ? AND active = ?", ruleID, true).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: rule %s", ErrNotFound, ruleID)
			}
			return err
		}
		return tx.Model(&rule).Update("active", false).Error
	})
	if err != nil {
		return nil, err
	}

	return &rule, nil
}
