package validators

import (
	"net/http"
	"strings"

	pkgerrors "github.com/pharmadesk/pharmadesk-backend/pkg/errors"
)

func QueryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

func RequireQueryEmail(r *http.Request, key string) (string, error) {
	value := strings.ToLower(QueryString(r, key))
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter is required").WithDetails(map[string]any{"field": key})
	}
	if !strings.Contains(value, "@") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be an email").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}
