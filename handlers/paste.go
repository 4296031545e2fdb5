package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/johnwmail/pasties/internal/services"
	"github.com/johnwmail/pasties/models"
	"go.uber.org/zap"
)

// ViewPasswordHeader carries the view password of protected pastes
const ViewPasswordHeader = "X-View-Password"

// PasteHandler serves the /api paste routes
type PasteHandler struct {
	service *services.PasteService
	logger  *zap.Logger
}

// NewPasteHandler creates a new paste handler
func NewPasteHandler(service *services.PasteService, logger *zap.Logger) *PasteHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasteHandler{service: service, logger: logger}
}

// Register mounts the paste routes on an /api group
func (h *PasteHandler) Register(api *gin.RouterGroup) {
	api.POST("/new", h.Create)
	api.POST("/clone", h.Clone)
	api.GET("/pastes", h.List)
	api.GET("/:url", h.Get)
	api.GET("/:url/raw", h.Raw)
	api.POST("/:url/delete", h.Delete)
	api.POST("/:url/edit", h.Edit)
	api.POST("/:url/metadata", h.EditMetadata)
}

// Create handles POST /api/new. The payload is [password, paste]; the plain
// password is only ever returned here.
func (h *PasteHandler) Create(c *gin.Context) {
	var req models.PasteCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	password, paste, err := h.service.Create(c.Request.Context(), req, Editor(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Paste created", []any{password, paste.Public()})
}

// Clone handles POST /api/clone
func (h *PasteHandler) Clone(c *gin.Context) {
	var req models.PasteClone
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	password, paste, err := h.service.Clone(c.Request.Context(), req, Editor(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Paste cloned", []any{password, paste.Public()})
}

func viewPassword(c *gin.Context) string {
	if v := c.GetHeader(ViewPasswordHeader); v != "" {
		return v
	}
	return c.Query("view_password")
}

// Get handles GET /api/:url
func (h *PasteHandler) Get(c *gin.Context) {
	paste, err := h.service.Get(c.Request.Context(), c.Param("url"), viewPassword(c), Editor(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Paste exists", paste.Public())
}

// Raw handles GET /api/:url/raw. Errors keep the JSON envelope, the content
// itself is served as plain text.
func (h *PasteHandler) Raw(c *gin.Context) {
	paste, err := h.service.Get(c.Request.Context(), c.Param("url"), viewPassword(c), Editor(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	filename := paste.URL + ".txt"
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"; filename*=UTF-8''%s", filename, url.PathEscape(filename)))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(paste.Content))
}

// Delete handles POST /api/:url/delete
func (h *PasteHandler) Delete(c *gin.Context) {
	var req models.PasteDelete
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), c.Param("url"), req.Password, Editor(c)); err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Paste deleted", nil)
}

// Edit handles POST /api/:url/edit
func (h *PasteHandler) Edit(c *gin.Context) {
	var req models.PasteEdit
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	paste, err := h.service.Edit(c.Request.Context(), c.Param("url"), req, Editor(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Paste updated", paste.Public())
}

// EditMetadata handles POST /api/:url/metadata
func (h *PasteHandler) EditMetadata(c *gin.Context) {
	var req models.PasteEditMetadata
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	paste, err := h.service.EditMetadata(c.Request.Context(), c.Param("url"), req, Editor(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	respond(c, http.StatusOK, "Paste updated", paste.Public())
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}

// List handles GET /api/pastes?owner=&offset=&limit=
func (h *PasteHandler) List(c *gin.Context) {
	offset, ok := queryInt(c, "offset")
	if !ok {
		respond(c, http.StatusBadRequest, "offset must be a number", nil)
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		respond(c, http.StatusBadRequest, "limit must be a number", nil)
		return
	}

	pastes, err := h.service.List(c.Request.Context(), models.ListOptions{
		Owner:  c.Query("owner"),
		Offset: offset,
		Limit:  limit,
	}, Editor(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	summaries := make([]models.PublicPaste, 0, len(pastes))
	for _, p := range pastes {
		summaries = append(summaries, p.Summary())
	}
	respond(c, http.StatusOK, "Pastes listed", summaries)
}
