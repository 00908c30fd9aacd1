package clientcache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
)

// HTTPSource запрашивает статус у сервера по GET /subscription-status.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSource создаёт новый HTTPSource.
func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Status возвращает статус подписки пользователя.
func (s *HTTPSource) Status(ctx context.Context, id Identity) (models.StatusView, error) {
	const op = "clientcache.HTTPSource.Status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/subscription-status", nil)
	if err != nil {
		return models.StatusView{}, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+id.Token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return models.StatusView{}, fmt.Errorf("%s: %w: %v", op, models.ErrExternalProvider, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return models.StatusView{}, fmt.Errorf("%s: %w", op, models.ErrAuthentication)
	case resp.StatusCode != http.StatusOK:
		return models.StatusView{}, fmt.Errorf("%s: %w: status %d", op, models.ErrExternalProvider, resp.StatusCode)
	}

	var view models.StatusView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return models.StatusView{}, fmt.Errorf("%s: %w: %v", op, models.ErrExternalProvider, err)
	}
	return view, nil
}
