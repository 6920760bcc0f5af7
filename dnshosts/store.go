package dnshosts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dipakchaulagain/NetAuthVPN/model"
	"github.com/dipakchaulagain/NetAuthVPN/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidHostname   = errors.New("invalid hostname")
	ErrInvalidAddress    = errors.New("invalid ip address")
	ErrDuplicateHostname = errors.New("hostname already registered")
	ErrNotFound          = errors.New("dns record not found")
)

// Store owns DNS record rows. Hostnames are unique among active records;
// removal keeps the row for audit and frees the name.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStore(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) Add(hostname, ip, description, createdBy string) (*model.DNSRecord, error) {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if !util.ValidHostname(hostname) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHostname, hostname)
	}
	if !util.ValidIP(ip) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}

	record := model.DNSRecord{
		ID:          uuid.New().String(),
		Hostname:    hostname,
		IPAddress:   ip,
		Description: description,
		Active:      true,
		Enabled:     true,
		CreatedBy:   createdBy,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.DNSRecord{}).
			Where("hostname = ? AND active = ?", hostname, true).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateHostname, hostname)
		}

		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("dns record added",
		zap.String("hostname", hostname), zap.String("ip", ip))
	return &record, nil
}

func (s *Store) Update(id, ip, description string) (*model.DNSRecord, error) {
	if !util.ValidIP(ip) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, ip)
	}

	var record model.DNSRecord
	if err := s.db.Where("id = ? AND active = ?", id, true).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	record.IPAddress = ip
	record.Description = description
	if err := s.db.Save(&record).Error; err != nil {
		return nil, err
	}

	return &record, nil
}

// Toggle flips a record's enabled flag. Disabled records stay listed but
// drop out of the projected hosts file.
func (s *Store) Toggle(id string) (*model.DNSRecord, error) {
	var record model.DNSRecord
	if err := s.db.Where("id = ? AND active = ?", id, true).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	record.Enabled = !record.Enabled
	if err := s.db.Save(&record).Error; err != nil {
		return nil, err
	}

	return &record, nil
}

func (s *Store) Remove(id string) error {
	result := s.db.Model(&model.DNSRecord{}).
		Where("id = ? AND active = ?", id, true).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *Store) Records() ([]model.DNSRecord, error) {
	var records []model.DNSRecord
	err := s.db.Where("active = ?", true).Order("hostname").Find(&records).Error
	return records, err
}
