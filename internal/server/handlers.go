package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/antoine78910/ecomefficiency-sub002/internal/constants"
	"github.com/antoine78910/ecomefficiency-sub002/internal/utils"
)

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, constants.MsgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"service": constants.AppName,
		"targets": len(s.Proxies),
	})
}

// HandleNewSession mints an opaque slot key for a service, giving a caller
// an isolated session without coordinating numeric slot assignments. The
// key is only a namespace: nothing is stored server-side.
func (s *Server) HandleNewSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, constants.MsgMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	service := r.URL.Query().Get("service")
	p, ok := s.Proxies[service]
	if !ok {
		http.Error(w, constants.MsgUnknownService, http.StatusNotFound)
		return
	}

	key := strings.ReplaceAll(uuid.New().String(), "-", "")
	cfg := p.Config()
	log.Printf("💾 Minted session slot %s for %s", key, cfg.Name)

	path := cfg.Route.BasePath + "/?" + constants.SessionQueryParam + "=" + key
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": cfg.Name,
		"slot":    key,
		"url":     path,
		"link":    utils.ConstructURL(utils.GetScheme(r), r.Host, path),
	})
}
