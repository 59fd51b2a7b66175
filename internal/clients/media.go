package clients

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/vericloud/vericloud/internal/models"
)

// Voice uploads an audio file as the multipart field "file".
func (h *HTTP) Voice(ctx context.Context, endpoint, filename string, r io.Reader) (models.ModalityResult, error) {
	return h.upload(ctx, "voice", endpoint, filename, r)
}

// Face uploads a video file as the multipart field "file".
func (h *HTTP) Face(ctx context.Context, endpoint, filename string, r io.Reader) (models.ModalityResult, error) {
	return h.upload(ctx, "face", endpoint, filename, r)
}

func (h *HTTP) upload(ctx context.Context, name, endpoint, filename string, r io.Reader) (models.ModalityResult, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return models.ModalityResult{}, err
	}
	if _, err = io.Copy(fw, r); err != nil {
		return models.ModalityResult{}, fmt.Errorf("%s: reading upload: %w", name, err)
	}
	if err = w.Close(); err != nil {
		return models.ModalityResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &b)
	if err != nil {
		return models.ModalityResult{}, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return h.do(req, name)
}
