package clients

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/vericloud/vericloud/internal/models"
)

// Text posts the transcript as the form field "text".
func (h *HTTP) Text(ctx context.Context, endpoint, text string) (models.ModalityResult, error) {
	form := url.Values{"text": {text}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return models.ModalityResult{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req, "text")
}
