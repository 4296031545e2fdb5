package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/johnwmail/pasties/internal/metrics"
	"github.com/johnwmail/pasties/internal/slug"
	"github.com/johnwmail/pasties/models"
	"github.com/johnwmail/pasties/storage"
	"github.com/johnwmail/pasties/utils"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Listing bounds
const (
	DefaultListLimit = 25
	MaxListLimit     = 100
)

// MaxExpiresIn caps expires_in at ten years
const MaxExpiresIn = int64(10 * 365 * 24 * 60 * 60)

// Options tunes a PasteService
type Options struct {
	// SlugLength is the length of generated URLs
	SlugLength int
	// Ownership records the authenticated editor as paste owner
	Ownership bool
	// BcryptCost defaults to bcrypt.DefaultCost
	BcryptCost int
	// Clock defaults to time.Now
	Clock   func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// PasteService handles paste business logic. Every method takes the
// username of the authenticated editor, empty for anonymous callers.
type PasteService struct {
	store   storage.PasteStore
	slugs   *slug.Generator
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewPasteService creates a new paste service
func NewPasteService(store storage.PasteStore, opts Options) *PasteService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &PasteService{
		store:   store,
		slugs:   slug.New(opts.SlugLength),
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Clock,
	}
}

// storeError maps storage failures onto PasteError kinds
func (s *PasteService) storeError(op, url string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return newError(KindNotFound, err)
	case errors.Is(err, storage.ErrAlreadyExists):
		return newError(KindAlreadyExists, err)
	}
	s.logger.Error("storage failure",
		zap.String("op", op),
		zap.String("url", url),
		zap.Error(err))
	return newError(KindOther, err)
}

// canonicalURL maps a requested URL onto its stored form so unicode links
// resolve to their punycode pastes. Malformed input is looked up verbatim
// and simply is not found.
func canonicalURL(raw string) string {
	if n, err := utils.NormalizeURL(raw); err == nil {
		return n
	}
	return raw
}

func (s *PasteService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return "", newError(KindOther, fmt.Errorf("hash password: %w", err))
	}
	return string(h), nil
}

func passwordMatches(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// authorize lets owners through and checks the edit password for everybody else
func authorize(p *models.Paste, password, editor string) error {
	if p.OwnedBy(editor) {
		return nil
	}
	if password == "" || !passwordMatches(p.Password, password) {
		return newError(KindPasswordIncorrect, nil)
	}
	return nil
}

// getLive loads a paste, treating expired pastes as missing and removing them
func (s *PasteService) getLive(ctx context.Context, url string) (*models.Paste, error) {
	p, err := s.store.GetByURL(ctx, url)
	if err != nil {
		return nil, s.storeError("get", url, err)
	}
	if p.IsExpired(s.now()) {
		if err := s.store.Delete(ctx, url); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("failed to delete expired paste", zap.String("url", url), zap.Error(err))
		} else {
			s.logger.Debug("deleted expired paste", zap.String("url", url))
		}
		return nil, newError(KindNotFound, nil)
	}
	return p, nil
}

// reclaimExpired frees url when the paste holding it has expired
func (s *PasteService) reclaimExpired(ctx context.Context, url string) bool {
	_, err := s.getLive(ctx, url)
	return IsKind(err, KindNotFound)
}

// urlTaken treats reserved names as taken so generated URLs never shadow a route
func (s *PasteService) urlTaken(ctx context.Context, url string) (bool, error) {
	if !utils.IsValidURL(url) {
		return true, nil
	}
	return s.store.Exists(ctx, url)
}

// newPaste is the shared tail of Create and Clone
func (s *PasteService) newPaste(ctx context.Context, url, password, content string, expiresIn int64, meta models.PasteMetadata, editor string) (string, *models.Paste, error) {
	if err := utils.ValidateContent(content); err != nil {
		return "", nil, invalid(err.Error(), err)
	}
	if expiresIn < 0 {
		return "", nil, invalid("expires_in must not be negative", nil)
	}
	if expiresIn > MaxExpiresIn {
		return "", nil, invalid(fmt.Sprintf("expires_in must not exceed %d seconds", MaxExpiresIn), nil)
	}

	if strings.TrimSpace(url) == "" {
		generated, err := s.slugs.GenerateUnique(ctx, s.urlTaken)
		if err != nil {
			return "", nil, s.storeError("generate url", "", err)
		}
		url = generated
	} else {
		normalized, err := utils.NormalizeURL(url)
		if err != nil {
			return "", nil, invalid(err.Error(), err)
		}
		url = normalized
	}

	if password == "" {
		secret, err := s.slugs.Secret()
		if err != nil {
			return "", nil, newError(KindOther, fmt.Errorf("generate password: %w", err))
		}
		password = secret
	} else if err := utils.ValidatePassword(password); err != nil {
		return "", nil, invalid(err.Error(), err)
	}

	hashed, err := s.hash(password)
	if err != nil {
		return "", nil, err
	}

	now := s.now().Unix()
	meta.Owner = ""
	if s.opts.Ownership {
		meta.Owner = editor
	}

	paste := &models.Paste{
		ID:            uuid.NewString(),
		URL:           url,
		Content:       content,
		Password:      hashed,
		DatePublished: now,
		DateEdited:    now,
		Metadata:      meta,
	}
	if expiresIn > 0 {
		paste.ExpiresAt = now + expiresIn
	}

	err = s.store.Create(ctx, paste)
	if errors.Is(err, storage.ErrAlreadyExists) && s.reclaimExpired(ctx, url) {
		err = s.store.Create(ctx, paste)
	}
	if err != nil {
		return "", nil, s.storeError("create", url, err)
	}

	return password, paste, nil
}

// Create stores a new paste and returns the plain edit password with it.
// Empty URL and password are generated.
func (s *PasteService) Create(ctx context.Context, req models.PasteCreate, editor string) (string, *models.Paste, error) {
	password, paste, err := s.newPaste(ctx, req.URL, req.Password, req.Content, req.ExpiresIn, models.PasteMetadata{}, editor)
	if err != nil {
		return "", nil, err
	}

	s.metrics.PasteOp(metrics.OpCreate)
	s.logger.Info("paste created",
		zap.String("url", paste.URL),
		zap.Int("size", len(paste.Content)),
		zap.Bool("owned", paste.Metadata.Owner != ""))
	return password, paste, nil
}

// Clone copies the content and presentation metadata of an existing paste
// into a new one. View protection and ownership are not copied, and
// protected pastes cannot be cloned at all.
func (s *PasteService) Clone(ctx context.Context, req models.PasteClone, editor string) (string, *models.Paste, error) {
	source, err := s.getLive(ctx, canonicalURL(req.Source))
	if err != nil {
		return "", nil, err
	}
	if source.IsViewProtected() {
		return "", nil, newError(KindViewPasswordRequired, nil)
	}

	meta := source.Metadata
	meta.ViewPassword = ""

	password, paste, err := s.newPaste(ctx, req.URL, req.Password, source.Content, 0, meta, editor)
	if err != nil {
		return "", nil, err
	}

	s.metrics.PasteOp(metrics.OpClone)
	s.logger.Info("paste cloned",
		zap.String("source", source.URL),
		zap.String("url", paste.URL))
	return password, paste, nil
}

// Get returns a paste and counts the view. View protected pastes need
// viewPassword unless editor owns them.
func (s *PasteService) Get(ctx context.Context, url, viewPassword, editor string) (*models.Paste, error) {
	p, err := s.getLive(ctx, canonicalURL(url))
	if err != nil {
		return nil, err
	}

	if p.IsViewProtected() && !p.OwnedBy(editor) {
		if viewPassword == "" {
			return nil, newError(KindViewPasswordRequired, nil)
		}
		if !passwordMatches(p.Metadata.ViewPassword, viewPassword) {
			return nil, newError(KindPasswordIncorrect, nil)
		}
	}

	if err := s.store.IncrementViews(ctx, p.URL); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(KindNotFound, err)
		}
		// A lost view must not fail the read
		s.logger.Warn("failed to count view", zap.String("url", p.URL), zap.Error(err))
	} else {
		p.Views++
		s.metrics.View()
	}
	return p, nil
}

// Edit changes content, URL or edit password. Empty fields keep their
// current value.
func (s *PasteService) Edit(ctx context.Context, url string, req models.PasteEdit, editor string) (*models.Paste, error) {
	p, err := s.getLive(ctx, canonicalURL(url))
	if err != nil {
		return nil, err
	}
	if err := authorize(p, req.Password, editor); err != nil {
		return nil, err
	}

	oldURL := p.URL

	if req.NewContent != "" {
		if err := utils.ValidateContent(req.NewContent); err != nil {
			return nil, invalid(err.Error(), err)
		}
		p.Content = req.NewContent
	}

	if strings.TrimSpace(req.NewURL) != "" {
		newURL, err := utils.NormalizeURL(req.NewURL)
		if err != nil {
			return nil, invalid(err.Error(), err)
		}
		p.URL = newURL
	}

	if req.NewPassword != "" {
		if err := utils.ValidatePassword(req.NewPassword); err != nil {
			return nil, invalid(err.Error(), err)
		}
		hashed, err := s.hash(req.NewPassword)
		if err != nil {
			return nil, err
		}
		p.Password = hashed
	}

	p.DateEdited = s.now().Unix()
	if err := s.store.Update(ctx, oldURL, p); err != nil {
		return nil, s.storeError("edit", oldURL, err)
	}

	s.metrics.PasteOp(metrics.OpEdit)
	s.logger.Info("paste edited",
		zap.String("url", p.URL),
		zap.Bool("renamed", p.URL != oldURL))
	return p, nil
}

// EditMetadata replaces the metadata of a paste. The owner always becomes
// the editor (cleared for anonymous editors) when ownership is enabled and
// is left untouched otherwise. A plain view password is hashed; an empty
// one removes view protection.
func (s *PasteService) EditMetadata(ctx context.Context, url string, req models.PasteEditMetadata, editor string) (*models.Paste, error) {
	p, err := s.getLive(ctx, canonicalURL(url))
	if err != nil {
		return nil, err
	}
	if err := authorize(p, req.Password, editor); err != nil {
		return nil, err
	}

	meta := req.Metadata
	meta.Title = strings.TrimSpace(meta.Title)
	meta.Description = strings.TrimSpace(meta.Description)
	if err := utils.ValidateMetadataText(meta.Title, meta.Description); err != nil {
		return nil, invalid(err.Error(), err)
	}
	if err := utils.ValidateColor(meta.EmbedColor); err != nil {
		return nil, invalid(err.Error(), err)
	}
	favicon, err := utils.NormalizeLink(meta.Favicon)
	if err != nil {
		return nil, invalid(err.Error(), err)
	}
	meta.Favicon = favicon

	if meta.ViewPassword != "" {
		if err := utils.ValidatePassword(meta.ViewPassword); err != nil {
			return nil, invalid(err.Error(), err)
		}
		hashed, err := s.hash(meta.ViewPassword)
		if err != nil {
			return nil, err
		}
		meta.ViewPassword = hashed
	}

	if s.opts.Ownership {
		meta.Owner = editor
	} else {
		meta.Owner = p.Metadata.Owner
	}

	p.Metadata = meta
	p.DateEdited = s.now().Unix()
	if err := s.store.Update(ctx, p.URL, p); err != nil {
		return nil, s.storeError("edit metadata", p.URL, err)
	}

	s.metrics.PasteOp(metrics.OpEditMetadata)
	s.logger.Info("paste metadata edited",
		zap.String("url", p.URL),
		zap.Bool("view_protected", p.IsViewProtected()))
	return p, nil
}

// Delete removes a paste after checking the password or ownership
func (s *PasteService) Delete(ctx context.Context, url, password, editor string) error {
	p, err := s.getLive(ctx, canonicalURL(url))
	if err != nil {
		return err
	}
	if err := authorize(p, password, editor); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, p.URL); err != nil {
		return s.storeError("delete", p.URL, err)
	}

	s.metrics.PasteOp(metrics.OpDelete)
	s.logger.Info("paste deleted", zap.String("url", p.URL))
	return nil
}

// List returns live pastes newest first. View protected pastes only show up
// when their owner lists their own pastes.
func (s *PasteService) List(ctx context.Context, opts models.ListOptions, editor string) ([]*models.Paste, error) {
	if opts.Offset < 0 {
		return nil, invalid("offset must not be negative", nil)
	}
	switch {
	case opts.Limit == 0:
		opts.Limit = DefaultListLimit
	case opts.Limit < 0 || opts.Limit > MaxListLimit:
		return nil, invalid(fmt.Sprintf("limit must be between 1 and %d", MaxListLimit), nil)
	}

	opts.IncludeProtected = editor != "" && opts.Owner == editor
	opts.ActiveAt = s.now().Unix()

	pastes, err := s.store.List(ctx, opts)
	if err != nil {
		return nil, s.storeError("list", "", err)
	}
	return pastes, nil
}

// PruneExpired removes every paste that has expired by now
func (s *PasteService) PruneExpired(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return n, s.storeError("prune", "", err)
	}

	s.metrics.Pruned(n)
	if n > 0 {
		s.logger.Info("pruned expired pastes", zap.Int64("count", n))
	}
	return n, nil
}

// Ping reports whether the storage backend is reachable
func (s *PasteService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
