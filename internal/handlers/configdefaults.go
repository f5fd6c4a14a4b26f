package handlers

import (
	"net/http"

	"github.com/agnox/producer/internal/config"
	"github.com/agnox/producer/internal/httpx"
)

// ConfigDefaults implements GET /config/defaults (public): env-derived
// dashboard bootstrap values, per spec.md §6.
func ConfigDefaults(w http.ResponseWriter, r *http.Request) {
	cfg := config.Get()
	httpx.OK(w, map[string]interface{}{
		"defaultImage":  cfg.Defaults.Image,
		"baseUrlsByEnv": cfg.Defaults.BaseURLsByEnv,
	})
}
