package marketplace

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillswap/internal/filestore"
	"github.com/sudo-init-do/skillswap/internal/trade"
)

const maxProofFiles = 10

func (h *Handler) store(c echo.Context, fh *multipart.FileHeader) (trade.FileRef, error) {
	f, err := fh.Open()
	if err != nil {
		return trade.FileRef{}, fmt.Errorf("%w: unreadable upload %s", trade.ErrValidation, fh.Filename)
	}
	defer f.Close()
	ref, err := h.files.Put(c.Request().Context(), actor(c).UserID, fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		return trade.FileRef{}, fileError(err)
	}
	return ref, nil
}

// ownedRef checks that a client-supplied ref names an existing upload of the
// caller and recomputes IsImage from the stored content type.
func (h *Handler) ownedRef(c echo.Context, ref trade.FileRef) (trade.FileRef, error) {
	if ref.Ref == "" {
		return trade.FileRef{}, fmt.Errorf("%w: file ref is required", trade.ErrValidation)
	}
	if filestore.Owner(ref.Ref) != actor(c).UserID {
		return trade.FileRef{}, fmt.Errorf("%w: file %q was not uploaded by you", trade.ErrForbidden, ref.Ref)
	}
	contentType, err := h.files.Stat(c.Request().Context(), ref.Ref)
	if errors.Is(err, filestore.ErrNotFound) {
		return trade.FileRef{}, fmt.Errorf("%w: unknown file %q", trade.ErrValidation, ref.Ref)
	}
	if err != nil {
		return trade.FileRef{}, fileError(err)
	}
	ref.IsImage = filestore.IsImage(contentType)
	return ref, nil
}

// SubmitProof accepts either multipart "files" or JSON {"files": [FileRef]}
// for files uploaded earlier through /files.
func (h *Handler) SubmitProof(c echo.Context) error {
	var refs []trade.FileRef
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid multipart form", "code": "validation"})
		}
		uploads := form.File["files"]
		if len(uploads) > maxProofFiles {
			return fail(c, fmt.Errorf("%w: at most %d files", trade.ErrValidation, maxProofFiles))
		}
		for _, fh := range uploads {
			ref, err := h.store(c, fh)
			if err != nil {
				return fail(c, err)
			}
			refs = append(refs, ref)
		}
	} else {
		var req struct {
			Files []trade.FileRef `json:"files"`
		}
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request", "code": "validation"})
		}
		if actor(c).UserID == "" {
			return fail(c, trade.ErrAuthentication)
		}
		if len(req.Files) > maxProofFiles {
			return fail(c, fmt.Errorf("%w: at most %d files", trade.ErrValidation, maxProofFiles))
		}
		for _, f := range req.Files {
			ref, err := h.ownedRef(c, f)
			if err != nil {
				return fail(c, err)
			}
			refs = append(refs, ref)
		}
	}

	t, err := h.svc.SubmitProof(c.Request().Context(), actor(c), c.Param("id"), refs)
	if err != nil {
		return fail(c, err)
	}
	return view(c, http.StatusOK, t)
}

// ApproveProof approves the partner's proof
func (h *Handler) ApproveProof(c echo.Context) error {
	t, err := h.svc.ApproveProof(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return view(c, http.StatusOK, t)
}

// RejectProof sends the partner's proof back for resubmission
func (h *Handler) RejectProof(c echo.Context) error {
	t, err := h.svc.RejectProof(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return view(c, http.StatusOK, t)
}

// SubmitRating scores the partner once both proofs are approved
func (h *Handler) SubmitRating(c echo.Context) error {
	var req struct {
		Score    int    `json:"score"`
		Feedback string `json:"feedback"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request", "code": "validation"})
	}
	res, err := h.svc.SubmitRating(c.Request().Context(), actor(c), c.Param("id"), req.Score, req.Feedback)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"trade":     res.Trade.View(actor(c).UserID),
		"completed": res.Completed,
		"progress":  res.Progress,
	})
}

// UploadFile stores a single multipart "file" and returns its reference
func (h *Handler) UploadFile(c echo.Context) error {
	if actor(c).UserID == "" {
		return fail(c, trade.ErrAuthentication)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing file", "code": "validation"})
	}
	ref, err := h.store(c, fh)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, ref)
}

// DownloadFile streams a stored file back to its uploader or to a
// participant of a trade it is attached to
func (h *Handler) DownloadFile(c echo.Context) error {
	a := actor(c)
	if a.UserID == "" {
		return fail(c, trade.ErrAuthentication)
	}
	ref := c.Param("ref")
	if _, err := h.files.Stat(c.Request().Context(), ref); err != nil {
		return fail(c, fileError(err))
	}
	if filestore.Owner(ref) != a.UserID {
		if err := h.svc.CanReadFile(c.Request().Context(), a, ref); err != nil {
			return fail(c, err)
		}
	}
	rc, contentType, err := h.files.Open(c.Request().Context(), ref)
	if err != nil {
		return fail(c, fileError(err))
	}
	defer rc.Close()
	return c.Stream(http.StatusOK, contentType, io.Reader(rc))
}
