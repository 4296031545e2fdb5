package models

import (
	"time"
)

// Paste is a stored paste record. Password and Metadata.ViewPassword hold
// bcrypt hashes; handlers never serialise a Paste directly, they use
// PublicPaste instead.
type Paste struct {
	ID            string        `json:"id" bson:"_id" gorm:"primaryKey;size:36"`
	URL           string        `json:"url" bson:"url" gorm:"uniqueIndex;size:250;not null"`
	Content       string        `json:"content" bson:"content" gorm:"not null"`
	Password      string        `json:"password" bson:"password" gorm:"size:72;not null"`
	DatePublished int64         `json:"date_published" bson:"date_published" gorm:"index;not null"`
	DateEdited    int64         `json:"date_edited" bson:"date_edited" gorm:"not null"`
	ExpiresAt     int64         `json:"expires_at" bson:"expires_at" gorm:"index;not null;default:0"`
	Views         int64         `json:"views" bson:"views" gorm:"not null;default:0"`
	Metadata      PasteMetadata `json:"metadata" bson:"metadata" gorm:"embedded;embeddedPrefix:metadata_"`
}

// TableName pins the gorm table name regardless of naming strategy.
func (Paste) TableName() string {
	return "pastes"
}

// PasteMetadata carries presentation and ownership details for a paste
type PasteMetadata struct {
	Owner        string `json:"owner" bson:"owner" gorm:"index;size:64;not null;default:''"`
	Title        string `json:"title" bson:"title" gorm:"size:100;not null;default:''"`
	Description  string `json:"description" bson:"description" gorm:"size:500;not null;default:''"`
	Favicon      string `json:"favicon" bson:"favicon" gorm:"size:2048;not null;default:''"`
	EmbedColor   string `json:"embed_color" bson:"embed_color" gorm:"size:7;not null;default:''"`
	ViewPassword string `json:"view_password" bson:"view_password" gorm:"size:72;not null;default:''"`
}

// IsExpired reports whether the paste has an expiry that lies at or before now
func (p *Paste) IsExpired(now time.Time) bool {
	if p.ExpiresAt <= 0 {
		return false
	}
	return now.Unix() >= p.ExpiresAt
}

// IsViewProtected reports whether reading the paste needs a view password
func (p *Paste) IsViewProtected() bool {
	return p.Metadata.ViewPassword != ""
}

// OwnedBy reports whether username is the recorded owner of the paste
func (p *Paste) OwnedBy(username string) bool {
	return username != "" && p.Metadata.Owner == username
}

// Public returns the representation of the paste that is safe to hand out
func (p *Paste) Public() PublicPaste {
	return PublicPaste{
		ID:            p.ID,
		URL:           p.URL,
		Content:       p.Content,
		DatePublished: p.DatePublished,
		DateEdited:    p.DateEdited,
		ExpiresAt:     p.ExpiresAt,
		Views:         p.Views,
		ViewProtected: p.IsViewProtected(),
		Metadata: PublicMetadata{
			Owner:       p.Metadata.Owner,
			Title:       p.Metadata.Title,
			Description: p.Metadata.Description,
			Favicon:     p.Metadata.Favicon,
			EmbedColor:  p.Metadata.EmbedColor,
		},
	}
}

// Summary is Public without the content, used by listings
func (p *Paste) Summary() PublicPaste {
	pub := p.Public()
	pub.Content = ""
	return pub
}

// PublicPaste is a paste stripped of every secret
type PublicPaste struct {
	ID            string         `json:"id"`
	URL           string         `json:"url"`
	Content       string         `json:"content,omitempty"`
	DatePublished int64          `json:"date_published"`
	DateEdited    int64          `json:"date_edited"`
	ExpiresAt     int64          `json:"expires_at"`
	Views         int64          `json:"views"`
	ViewProtected bool           `json:"view_protected"`
	Metadata      PublicMetadata `json:"metadata"`
}

// PublicMetadata is PasteMetadata without the view password
type PublicMetadata struct {
	Owner       string `json:"owner"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Favicon     string `json:"favicon"`
	EmbedColor  string `json:"embed_color"`
}
