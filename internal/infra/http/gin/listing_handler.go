package ginserver

import (
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"campusmarket/internal/app/dto"
	listingsvc "campusmarket/internal/app/services/listings"
	domainlisting "campusmarket/internal/domain/listing"
	domainuser "campusmarket/internal/domain/user"
)

// ListingHTTP exposes the catalog endpoints.
type ListingHTTP interface {
	Browse(c *gin.Context)
	Get(c *gin.Context)
	Create(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	ToggleSave(c *gin.Context)
	Saved(c *gin.Context)
	BySeller(c *gin.Context)
}

type ListingHandler struct {
	Service *listingsvc.Service
	Logger  *slog.Logger
}

const maxImageBytes = 10 << 20

type listingForm struct {
	Name        string
	Description string
	PriceCents  int64
	Image       io.Reader
	ImageName   string
	ImageType   string
	file        multipart.File
}

func (f *listingForm) close() {
	if f.file != nil {
		_ = f.file.Close()
	}
}

// Browse lists the newest items, filtered by ?q= when present. Works for
// anonymous visitors; bookmark state needs a session.
func (h ListingHandler) Browse(c *gin.Context) {
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	viewer := viewerID(c)
	limit := parsePositiveInt(c.Query("limit"), 0)
	views, err := h.Service.Browse(c.Request.Context(), viewer, c.Query("q"), limit)
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapListingList(views))
}

func (h ListingHandler) Get(c *gin.Context) {
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing id is required"})
		return
	}
	view, err := h.Service.Get(c.Request.Context(), domainlisting.ID(id), viewerID(c))
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapListingView(view))
}

func (h ListingHandler) Create(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	form, err := h.bindListingForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer form.close()

	item, err := h.Service.Create(c.Request.Context(), listingsvc.CreateParams{
		SellerID:    domainuser.ID(principal.ID),
		Name:        form.Name,
		Description: form.Description,
		PriceCents:  form.PriceCents,
		Image:       form.Image,
		ImageName:   form.ImageName,
		ImageType:   form.ImageType,
	})
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.MapListing(item))
}

func (h ListingHandler) Update(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing id is required"})
		return
	}
	form, err := h.bindListingForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer form.close()

	item, err := h.Service.Update(c.Request.Context(), domainlisting.ID(id), domainuser.ID(principal.ID), listingsvc.UpdateParams{
		Name:        form.Name,
		Description: form.Description,
		PriceCents:  form.PriceCents,
		Image:       form.Image,
		ImageName:   form.ImageName,
		ImageType:   form.ImageType,
	})
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapListing(item))
}

func (h ListingHandler) Delete(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing id is required"})
		return
	}
	if err := h.Service.Delete(c.Request.Context(), domainlisting.ID(id), domainuser.ID(principal.ID)); err != nil {
		h.respondListingError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h ListingHandler) ToggleSave(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing id is required"})
		return
	}
	saved, err := h.Service.ToggleSave(c.Request.Context(), domainlisting.ID(id), domainuser.ID(principal.ID))
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SaveState{ListingID: id, Saved: saved})
}

func (h ListingHandler) Saved(c *gin.Context) {
	principal, ok := requireAuth(c)
	if !ok {
		return
	}
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	views, err := h.Service.Saved(c.Request.Context(), domainuser.ID(principal.ID))
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapListingList(views))
}

func (h ListingHandler) BySeller(c *gin.Context) {
	if h.Service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listings unavailable"})
		return
	}
	sellerID := strings.TrimSpace(c.Param("id"))
	if sellerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user id is required"})
		return
	}
	views, err := h.Service.BySeller(c.Request.Context(), domainuser.ID(sellerID), viewerID(c))
	if err != nil {
		h.respondListingError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MapListingList(views))
}

// bindListingForm accepts multipart form posts (with an optional image
// file) and plain JSON bodies.
func (h ListingHandler) bindListingForm(c *gin.Context) (*listingForm, error) {
	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		priceCents, err := strconv.ParseInt(strings.TrimSpace(c.PostForm("price_cents")), 10, 64)
		if err != nil {
			return nil, errors.New("price_cents must be an integer")
		}
		form := &listingForm{
			Name:        c.PostForm("name"),
			Description: c.PostForm("description"),
			PriceCents:  priceCents,
		}
		header, err := c.FormFile("image")
		if err == nil && header != nil {
			if header.Size > maxImageBytes {
				return nil, errors.New("image exceeds the size limit")
			}
			file, err := header.Open()
			if err != nil {
				return nil, errors.New("cannot read image")
			}
			form.file = file
			form.Image = file
			form.ImageName = header.Filename
			form.ImageType = header.Header.Get("Content-Type")
		}
		return form, nil
	}

	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		PriceCents  int64  `json:"price_cents"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, errors.New("invalid request")
	}
	return &listingForm{
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
	}, nil
}

func (h ListingHandler) respondListingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainlisting.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
	case errors.Is(err, domainlisting.ErrNotSeller):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the seller may modify a listing"})
	case errors.Is(err, domainlisting.ErrNameRequired),
		errors.Is(err, domainlisting.ErrInvalidPrice):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		if h.Logger != nil {
			h.Logger.Error("listing operation failed", "error", err)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func viewerID(c *gin.Context) domainuser.ID {
	if principal, ok := currentPrincipal(c); ok {
		return domainuser.ID(principal.ID)
	}
	return ""
}

func parsePositiveInt(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

var _ ListingHTTP = (*ListingHandler)(nil)
