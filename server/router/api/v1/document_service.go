package v1

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	lerrors "github.com/hrygo/loom/internal/errors"
	"github.com/hrygo/loom/store"
)

// maxDocumentBytes bounds uploads at 10 MiB.
const maxDocumentBytes = 10 << 20

type documentResponse struct {
	ThreadID       string `json:"thread_id"`
	Filename       string `json:"filename"`
	DocumentsCount int    `json:"documents_count"`
	ChunksCount    int    `json:"chunks_count"`
	UploadedTs     int64  `json:"uploaded_ts"`
}

func toDocumentResponse(m *store.DocumentMetadata) documentResponse {
	return documentResponse{
		ThreadID:       m.ThreadID,
		Filename:       m.Filename,
		DocumentsCount: m.DocumentsCount,
		ChunksCount:    m.ChunksCount,
		UploadedTs:     m.UploadedTs,
	}
}

func (s *APIV1Service) uploadDocument(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return lerrors.New(lerrors.ErrCodeInvalidArgument, "multipart field \"file\" is required")
	}
	if file.Size > maxDocumentBytes {
		return lerrors.Newf(lerrors.ErrCodeInvalidArgument, "file exceeds %d bytes", maxDocumentBytes)
	}
	src, err := file.Open()
	if err != nil {
		return lerrors.Wrap(err, lerrors.ErrCodeIngestFailed, "failed to open upload")
	}
	defer src.Close()
	content, err := io.ReadAll(io.LimitReader(src, maxDocumentBytes+1))
	if err != nil {
		return lerrors.Wrap(err, lerrors.ErrCodeIngestFailed, "failed to read upload")
	}
	if len(content) > maxDocumentBytes {
		return lerrors.Newf(lerrors.ErrCodeInvalidArgument, "file exceeds %d bytes", maxDocumentBytes)
	}

	meta, err := s.ChatService.IngestDocument(c.Request().Context(), c.Param("id"), file.Filename, content)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toDocumentResponse(meta))
}

func (s *APIV1Service) getDocument(c echo.Context) error {
	meta, err := s.ChatService.DocumentInfo(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toDocumentResponse(meta))
}

type queryDocumentRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

func (s *APIV1Service) queryDocument(c echo.Context) error {
	var req queryDocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.TopK <= 0 {
		req.TopK = 4
	}
	answer, err := s.ChatService.QueryDocument(c.Request().Context(), c.Param("id"), req.Query, req.TopK)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, answer)
}
