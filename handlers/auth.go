package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/johnwmail/pasties/internal/auth"
	"github.com/johnwmail/pasties/internal/services"
	"go.uber.org/zap"
)

const editorKey = "editor"

// ResolveEditor stores the authenticated username in the context. A token
// that fails verification aborts the request with 401.
func ResolveEditor(a *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		editor, err := a.Editor(c.Request)
		if err != nil {
			fail(c, zap.NewNop(), &services.PasteError{
				Kind:   services.KindUnauthorized,
				Detail: "Invalid authentication token",
				Err:    err,
			})
			c.Abort()
			return
		}
		c.Set(editorKey, editor)
		c.Next()
	}
}

// Editor returns the username resolved by ResolveEditor, "" when anonymous
func Editor(c *gin.Context) string {
	return c.GetString(editorKey)
}
