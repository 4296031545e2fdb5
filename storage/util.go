package storage

import (
	"errors"

	"github.com/johnwmail/pasties/models"
)

var errClosed = errors.New("store is closed")

// paginate applies offset/limit to an already filtered and sorted slice
func paginate(pastes []*models.Paste, offset, limit int) []*models.Paste {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(pastes) {
		return []*models.Paste{}
	}
	pastes = pastes[offset:]
	if limit > 0 && limit < len(pastes) {
		pastes = pastes[:limit]
	}
	return pastes
}
