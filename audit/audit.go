package audit

import (
	"github.com/dipakchaulagain/NetAuthVPN/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Recorder appends audit rows. Entries are write-only from this package;
// nothing here updates or deletes them.
type Recorder struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewRecorder(db *gorm.DB, log *zap.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

type Entry struct {
	ActorID      string
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	Details      string
	IPAddress    string
}

// Record writes one audit row. A failed audit write is logged but never
// propagated; auditing must not break the operation it describes.
func (r *Recorder) Record(e Entry) {
	row := model.AuditLog{
		ID:           uuid.New().String(),
		ActorID:      e.ActorID,
		Actor:        e.Actor,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      e.Details,
		IPAddress:    e.IPAddress,
	}

	if err := r.db.Create(&row).Error; err != nil {
		r.log.Error("audit write failed",
			zap.String("action", e.Action),
			zap.Error(err))
	}
}
