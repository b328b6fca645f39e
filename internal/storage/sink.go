package storage

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/commentd/oauth-relay/internal/relay"
)

// ThirdPartyIdentity is the persisted form of a fetched identity, keyed by
// (platform, external id). The table name matches what existing comment
// system deployments already query.
type ThirdPartyIdentity struct {
	Platform   string `gorm:"primaryKey;size:32"`
	ExternalID string `gorm:"column:id;primaryKey;size:191"`
	Name       string `gorm:"size:255"`
	Email      string `gorm:"size:255"`
	Avatar     string `gorm:"size:1024"`
	ProfileURL string `gorm:"column:profile_url;size:1024"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ThirdPartyIdentity) TableName() string { return "wl_3rd_info" }

// Sink writes normalized identities to the database. It is strictly a
// best-effort side effect: the relay invokes it detached from the response
// path and only ever logs its outcome.
type Sink struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewSink migrates the identity table and returns a Sink.
func NewSink(db *gorm.DB, log *zap.Logger) (*Sink, error) {
	if db == nil {
		return nil, errors.New("storage: db is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&ThirdPartyIdentity{}); err != nil {
		return nil, err
	}
	return &Sink{db: db, log: log}, nil
}

// Upsert inserts or refreshes the identity row keyed by (platform, id).
func (s *Sink) Upsert(ctx context.Context, identity relay.Identity) error {
	if identity.Platform == "" || identity.ID == "" {
		return errors.New("storage: platform and id are required")
	}

	row := ThirdPartyIdentity{
		Platform:   identity.Platform,
		ExternalID: identity.ID,
		Name:       identity.Name,
		Email:      identity.Email,
		Avatar:     identity.Avatar,
		ProfileURL: identity.URL,
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "platform"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "email", "avatar", "profile_url", "updated_at",
		}),
	}).Create(&row).Error
}
