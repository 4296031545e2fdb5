package models

// PasteCreate is the body of POST /api/new. Empty URL or Password are
// generated by the service.
type PasteCreate struct {
	URL       string `json:"url"`
	Content   string `json:"content"`
	Password  string `json:"password"`
	ExpiresIn int64  `json:"expires_in"` // seconds, 0 keeps the paste forever
}

// PasteClone is the body of POST /api/clone
type PasteClone struct {
	Source   string `json:"source" binding:"required"`
	URL      string `json:"url"`
	Password string `json:"password"`
}

// PasteEdit is the body of POST /api/:url/edit
type PasteEdit struct {
	Password    string `json:"password"`
	NewContent  string `json:"new_content"`
	NewURL      string `json:"new_url"`
	NewPassword string `json:"new_password"`
}

// PasteEditMetadata is the body of POST /api/:url/metadata. ViewPassword in
// Metadata is the plain value; an empty value removes protection.
type PasteEditMetadata struct {
	Password string        `json:"password"`
	Metadata PasteMetadata `json:"metadata"`
}

// PasteDelete is the body of POST /api/:url/delete
type PasteDelete struct {
	Password string `json:"password"`
}

// ListOptions narrows a paste listing
type ListOptions struct {
	Owner  string
	Offset int
	Limit  int
	// IncludeProtected also returns view-protected pastes
	IncludeProtected bool
	// ActiveAt skips pastes already expired at this unix time; 0 disables
	ActiveAt int64
}

// Matches reports whether p passes the owner, protection and expiry filters
func (o ListOptions) Matches(p *Paste) bool {
	if o.Owner != "" && p.Metadata.Owner != o.Owner {
		return false
	}
	if !o.IncludeProtected && p.IsViewProtected() {
		return false
	}
	if o.ActiveAt > 0 && p.ExpiresAt > 0 && p.ExpiresAt <= o.ActiveAt {
		return false
	}
	return true
}
