package srvreg

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/finsys-id/finance-api/repository/models"
)

// maxDocumentSize bounds uploaded document content (decoded bytes)
const maxDocumentSize = 10 << 20

type uploadDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"` // base64-encoded
}

// documentView omits the content blob from listing responses
type documentView struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	UploadedAt time.Time `json:"uploaded_at"`
	UploaderID uint      `json:"uploader_id"`
}

func viewDocument(d *models.Document) documentView {
	return documentView{
		ID:         d.ID,
		Title:      d.Title,
		UploadedAt: d.UploadedAt,
		UploaderID: d.UploaderID,
	}
}

func (sr *ServiceRegistry) UploadDocumentHandler(req *Request) (*Response, error) {
	var body uploadDocumentRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}
	if body.Title == "" || body.Content == "" {
		return badRequest("title and content are required")
	}

	content, err := base64.StdEncoding.DecodeString(body.Content)
	if err != nil {
		return badRequest("content must be base64-encoded")
	}
	if len(content) > maxDocumentSize {
		return badRequest("document exceeds maximum size")
	}

	doc, repoErr := sr.repository.StoreDocument(body.Title, content, req.UserID)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusCreated, viewDocument(doc))
}

func (sr *ServiceRegistry) ListDocumentsHandler(req *Request) (*Response, error) {
	docs, repoErr := sr.repository.ListDocumentsByUploader(req.UserID)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	views := make([]documentView, 0, len(docs))
	for i := range docs {
		views = append(views, viewDocument(&docs[i]))
	}
	return jsonResponse(http.StatusOK, views)
}

func (sr *ServiceRegistry) DownloadDocumentHandler(req *Request) (*Response, error) {
	doc, repoErr := sr.repository.GetDocument(req.params()["id"])
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return &Response{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":        "application/octet-stream",
			"Content-Disposition": fmt.Sprintf("attachment; filename=%q", doc.Title),
		},
		Body: string(doc.Content),
	}, nil
}

func (sr *ServiceRegistry) DeleteDocumentHandler(req *Request) (*Response, error) {
	isAdmin := sr.repository.IsAdmin(req.UserID)
	if repoErr := sr.repository.DeleteDocument(req.params()["id"], req.UserID, isAdmin); repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, map[string]string{"status": "deleted"})
}
