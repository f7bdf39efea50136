// Package handlers serves the worker, buyer and cron HTTP endpoints on top of
// the services package.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/openclaw/marketplace/internal/apperror"
)

func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.Validation("invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, apperror.Validation(name + ": must be a UUID")
	}
	return id, nil
}

// queryInt reads a positive integer query parameter, returning def when absent or invalid.
func queryInt(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
