package cases

import (
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/caplatform/backend/internal/auth"
	apperrors "github.com/caplatform/backend/internal/errors"
	"github.com/caplatform/backend/internal/notify"
	"github.com/caplatform/backend/internal/storage"
	"github.com/caplatform/backend/pkg/logger"
	"github.com/caplatform/backend/pkg/models"
)

const maxDocumentSize = 10 * 1024 * 1024

// The allow-list goes by file extension, not the client-supplied
// Content-Type header, which is trivially spoofable.
func allowedExtension(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".jpg", ".jpeg":
		return true
	}
	return false
}

/* =============================== Upload ================================= */

// UploadDocument attaches a file to a case. Both the owning client and staff
// may upload; staff uploads are auto-verified, client uploads await staff
// review. The blob is stored before the row so a failed write never leaves a
// dangling record.
func (h *Handler) UploadDocument(c *fiber.Ctx) error {
	cs, err := h.loadVisible(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form with a file field is required")
	}
	docType := strings.TrimSpace(c.FormValue("document_type"))
	if docType == "" {
		return fiber.NewError(fiber.StatusBadRequest, "document_type is required")
	}

	if fh.Size <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "empty file")
	}
	if fh.Size > maxDocumentSize {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "max 10MB per file")
	}
	if !allowedExtension(fh.Filename) {
		return apperrors.ErrUnsupportedFileType
	}

	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(fh.Filename))
	}

	f, err := fh.Open()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	defer f.Close()

	key := storage.MakeObjectKey(cs.ID.String(), fh.Filename)
	if err := h.store.Upload(key, f, ct, fh.Size); err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	uploaderID, _ := uuid.Parse(auth.MustUserID(c))
	doc := models.Document{
		CaseID:       cs.ID,
		Key:          key,
		OriginalName: fh.Filename,
		DocumentType: docType,
		Mime:         ct,
		Size:         fh.Size,
		UploadedByID: uploaderID,
		IsVerified:   auth.MustRole(c) == string(models.RoleStaff),
	}
	if err := h.db.Create(&doc).Error; err != nil {
		// Row failed after the blob landed; clean up best-effort.
		if derr := h.store.Delete(key); derr != nil {
			logger.Get().Errorw("orphan blob cleanup failed", "key", key, "error", derr)
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	h.engine.notifier.Publish(notify.DocumentUploaded{Case: cs, Document: &doc})

	return c.Status(fiber.StatusCreated).JSON(doc)
}

/* ============================== Download ================================ */

// SignedDownloadURL returns a short-lived URL for a document on a case the
// caller can see.
func (h *Handler) SignedDownloadURL(c *fiber.Ctx) error {
	cs, err := h.loadVisible(c)
	if err != nil {
		return err
	}

	doc, err := h.findDocument(cs, c.Params("docID"))
	if err != nil {
		return err
	}

	url, err := h.store.SignedURL(doc.Key, 60) // seconds
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return c.JSON(fiber.Map{"url": url, "expires_in": 60, "now": time.Now().UTC()})
}

/* =============================== Verify ================================= */

// VerifyDocument marks a client-uploaded document as reviewed. Staff only.
func (h *Handler) VerifyDocument(c *fiber.Ctx) error {
	cs, err := h.loadVisible(c)
	if err != nil {
		return err
	}

	doc, err := h.findDocument(cs, c.Params("docID"))
	if err != nil {
		return err
	}

	if !doc.IsVerified {
		doc.IsVerified = true
		if err := h.db.Save(doc).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return c.JSON(doc)
}

/* =============================== Delete ================================= */

// DeleteDocument removes the row, then the blob. A blob that fails to delete
// is logged and left behind; the record is authoritative.
func (h *Handler) DeleteDocument(c *fiber.Ctx) error {
	cs, err := h.loadVisible(c)
	if err != nil {
		return err
	}

	doc, err := h.findDocument(cs, c.Params("docID"))
	if err != nil {
		return err
	}

	// Clients may only remove their own unverified uploads.
	if auth.MustRole(c) != string(models.RoleStaff) {
		if doc.UploadedByID.String() != auth.MustUserID(c) || doc.IsVerified {
			return fiber.ErrForbidden
		}
	}

	if err := h.db.Delete(doc).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if err := h.store.Delete(doc.Key); err != nil {
		logger.Get().Errorw("blob delete failed", "key", doc.Key, "error", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) findDocument(cs *models.Case, docID string) (*models.Document, error) {
	var doc models.Document
	err := h.db.First(&doc, "id = ? AND case_id = ?", docID, cs.ID).Error
	if err != nil {
		return nil, apperrors.ErrDocumentNotFound
	}
	return &doc, nil
}
