package servicerequests

import (
	"context"
	"io"
	"mime"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-aid-backend/internal/auth"
	"github.com/aldoetobex/legal-aid-backend/internal/storage"
)

const maxDocumentSize = 10 * 1024 * 1024

// DocumentStore is the object storage the handlers need.
type DocumentStore interface {
	Upload(ctx context.Context, key string, r io.Reader, contentType string, size int64) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

var allowedMimes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
}

// Upload Documents godoc
// @Summary      Upload supporting documents (PDF/PNG/JPEG)
// @Description  Owner client uploads up to 10 files; each becomes an unverified document
// @Tags         documents
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id     path      string   true  "service request id (uuid)"
// @Param        files  formData  []file   true  "PDF/PNG/JPEG (max 10)"
// @Success      201    {object}  map[string]any  "results"
// @Failure      400    {object}  models.ErrorResponse
// @Failure      503    {object}  models.ErrorResponse
// @Router       /service-requests/{id}/documents [post]
func (h *Handler) UploadDocuments(c *fiber.Ctx) error {
	if h.store == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "document storage is not configured")
	}
	id, err := parseRequestID(c)
	if err != nil {
		return err
	}
	clientID, err := auth.MustUserUUID(c)
	if err != nil {
		return err
	}

	// Ownership and status are checked before anything is uploaded
	req, err := h.intake.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	if req.ClientID != clientID {
		return fiber.ErrForbidden
	}

	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form required; use files[]")
	}
	// Swagger UI sends "files" even when the docs say files[]
	files := form.File["files[]"]
	if len(files) == 0 {
		files = form.File["files"]
	}
	if len(files) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "files are required (use key: files[])")
	}
	if len(files) > 10 {
		return fiber.NewError(fiber.StatusBadRequest, "max 10 files allowed")
	}

	ctx := c.UserContext()
	results := make([]fiber.Map, 0, len(files))
	for _, fh := range files {
		res := fiber.Map{"name": fh.Filename, "size": fh.Size}

		if fh.Size <= 0 {
			res["error"] = "empty file"
			results = append(results, res)
			continue
		}
		if fh.Size > maxDocumentSize {
			res["error"] = "max 10MB per file"
			results = append(results, res)
			continue
		}
		ct := fh.Header.Get("Content-Type")
		if ct == "" {
			ct = mime.TypeByExtension(filepath.Ext(fh.Filename))
		}
		if !allowedMimes[ct] {
			res["error"] = "only PDF, PNG or JPEG are allowed"
			results = append(results, res)
			continue
		}

		f, err := fh.Open()
		if err != nil {
			res["error"] = "open failed"
			results = append(results, res)
			continue
		}
		key := storage.MakeObjectKey(id.String(), fh.Filename)
		err = h.store.Upload(ctx, key, f, ct, fh.Size)
		_ = f.Close()
		if err != nil {
			res["error"] = "upload failed"
			results = append(results, res)
			continue
		}

		doc, err := h.intake.AddDocument(ctx, DocumentInput{
			RequestID:    id,
			ClientID:     clientID,
			Key:          key,
			Mime:         ct,
			Size:         fh.Size,
			OriginalName: fh.Filename,
		})
		if err != nil {
			// the row was not written, so the object would be orphaned
			_ = h.store.Delete(ctx, key)
			res["error"] = err.Error()
			results = append(results, res)
			continue
		}
		res["id"] = doc.ID
		results = append(results, res)
	}

	// 201 even on partial failure; clients check "error" per item
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"results": results})
}

// Document URL godoc
// @Summary      Get a signed download URL
// @Description  Owner client or staff obtains a short-lived URL for one document
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id          path string true "service request id (uuid)"
// @Param        documentID  path string true "document id (uuid)"
// @Success      200  {object}  map[string]any  "url, expires_in, now"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /service-requests/{id}/documents/{documentID}/url [get]
func (h *Handler) DocumentURL(c *fiber.Ctx) error {
	if h.store == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "document storage is not configured")
	}
	id, err := parseRequestID(c)
	if err != nil {
		return err
	}
	docID, err := uuid.Parse(c.Params("documentID"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid document id")
	}

	req, err := h.intake.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !auth.IsStaff(c) && req.ClientID.String() != auth.MustUserID(c) {
		return fiber.ErrForbidden
	}
	doc, err := h.intake.Document(c.UserContext(), id, docID)
	if err != nil {
		return err
	}

	url, err := h.store.SignedURL(c.UserContext(), doc.Key, storage.SignedURLTTL)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{
		"url":        url,
		"expires_in": int(storage.SignedURLTTL.Seconds()),
		"now":        time.Now().UTC(),
	})
}
