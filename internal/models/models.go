package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Name         string    `gorm:"not null;size:100" json:"name"`
	Role         Role      `gorm:"not null;size:20;default:'user'" json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave keeps emails case-folded so uniqueness is case-insensitive.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	return nil
}

type App struct {
	ID               string     `gorm:"type:uuid;primaryKey" json:"id"`
	Slug             string     `gorm:"uniqueIndex;not null;size:150" json:"slug"`
	Name             string     `gorm:"not null;size:100" json:"name"`
	Description      string     `gorm:"type:text" json:"description"`
	ShortDescription string     `gorm:"size:255" json:"short_description"`
	Category         string     `gorm:"index;not null;size:50" json:"category"`
	Price            float64    `gorm:"type:numeric(10,2);not null;default:0" json:"price"`
	Type             AppType    `gorm:"not null;size:10" json:"type"`
	Version          string     `gorm:"not null;size:20" json:"version"`
	FilePath         string     `json:"file_path"`
	Icon             string     `json:"icon"`
	Screenshots      StringList `gorm:"not null;default:'[]'" json:"screenshots"`
	Size             int64      `gorm:"not null;default:0" json:"size"`
	Downloads        int64      `gorm:"not null;default:0" json:"downloads"`
	Rating           float64    `gorm:"type:numeric(3,2);not null;default:0" json:"rating"`
	RatingCount      int64      `gorm:"not null;default:0" json:"rating_count"`
	Featured         bool       `gorm:"not null;default:false" json:"featured"`
	IsHot            bool       `gorm:"not null;default:false" json:"is_hot"`
	Status           AppStatus  `gorm:"index;not null;size:20;default:'pending'" json:"status"`
	DeveloperID      string     `gorm:"type:uuid;index;not null" json:"developer_id"`
	Developer        *User      `gorm:"foreignKey:DeveloperID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (a *App) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// IsFree reports whether the app can be downloaded without a purchase.
func (a *App) IsFree() bool { return a.Price <= 0 }

// VisibleTo reports whether a non-public app may be shown to the given user.
func (a *App) VisibleTo(u *User) bool {
	if a.Status == AppApproved {
		return true
	}
	return u != nil && (u.ID == a.DeveloperID || u.Role == RoleAdmin)
}

// AppListing is an app row joined with its developer's display name.
type AppListing struct {
	App
	DeveloperName string `json:"developer_name"`
}

type Review struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_reviews_user_app" json:"user_id"`
	AppID     string    `gorm:"type:uuid;not null;uniqueIndex:idx_reviews_user_app;index" json:"app_id"`
	Rating    int       `gorm:"not null;check:rating >= 1 AND rating <= 5" json:"rating"`
	Comment   string    `gorm:"type:text" json:"comment"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	App       *App      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Review) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// ReviewListing is a review joined with the reviewer's name.
type ReviewListing struct {
	Review
	UserName string `json:"user_name"`
}

// Purchase rows are never deleted with their app; deleting a sold app is
// rejected by the foreign key and surfaces as an invalid reference.
type Purchase struct {
	ID              string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          string         `gorm:"type:uuid;not null;index" json:"user_id"`
	AppID           string         `gorm:"type:uuid;not null;index" json:"app_id"`
	Amount          float64        `gorm:"type:numeric(10,2);not null" json:"amount"`
	Commission      float64        `gorm:"type:numeric(10,2);not null" json:"commission"`
	Status          PurchaseStatus `gorm:"index;not null;size:20;default:'pending'" json:"status"`
	StripeSessionID string         `gorm:"uniqueIndex;not null;size:255" json:"stripe_session_id"`
	StripePaymentID *string        `gorm:"size:255" json:"stripe_payment_id,omitempty"`
	StripeRefundID  *string        `gorm:"size:255" json:"stripe_refund_id,omitempty"`
	User            *User          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	App             *App           `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (p *Purchase) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// PurchaseListing is a purchase joined with the bought app's display fields.
type PurchaseListing struct {
	Purchase
	AppName string `json:"app_name"`
	AppIcon string `json:"icon"`
	AppSlug string `json:"slug"`
}

// Download is an append-only audit record of a served package.
type Download struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AppID     string    `gorm:"type:uuid;not null;index" json:"app_id"`
	UserID    *string   `gorm:"type:uuid" json:"user_id,omitempty"`
	IPAddress string    `gorm:"size:64" json:"ip_address"`
	UserAgent string    `gorm:"type:text" json:"user_agent"`
	App       *App      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// All lists the entities in migration order.
func All() []interface{} {
	return []interface{}{&User{}, &App{}, &Review{}, &Purchase{}, &Download{}}
}
