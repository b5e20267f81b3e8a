package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"zigbee-gadgets/internal/coordinator"
	"zigbee-gadgets/internal/gadget"
	"zigbee-gadgets/internal/zcl"
)

const (
	defaultCommandLimit = 50
	maxCommandLimit     = 1000
)

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.coord.GetDevices())
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.coord.Device(r.PathValue("addr"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "device not found")
		return
	}
	s.writeJSON(w, http.StatusOK, dev)
}

type permitJoinRequest struct {
	Time int `json:"time"`
}

func (s *Server) handleAPIPermitJoin(w http.ResponseWriter, r *http.Request) {
	var req permitJoinRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.coord.PermitJoin(r.Context(), req.Time); err != nil {
		s.logger.Warn("permit join", "err", err)
		s.writeError(w, requestStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": req.Time})
}

type writeRequest struct {
	PermAddr string `json:"permAddr"`
	AuxID    string `json:"auxId"`
	Value    any    `json:"value"`
}

func (s *Server) handleAPIWrite(w http.ResponseWriter, r *http.Request) {
	var req writeRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PermAddr == "" {
		s.writeError(w, http.StatusBadRequest, "permAddr is required")
		return
	}

	if err := s.coord.Write(r.Context(), req.PermAddr, req.AuxID, req.Value); err != nil {
		s.logger.Warn("write", "permAddr", req.PermAddr, "auxId", req.AuxID, "err", err)
		s.writeError(w, requestStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "value": req.Value})
}

func (s *Server) handleAPICatalog(w http.ResponseWriter, r *http.Request) {
	devices, err := s.coord.Catalog()
	if err != nil {
		s.logger.Error("list catalog", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleAPICommands(w http.ResponseWriter, r *http.Request) {
	limit := defaultCommandLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxCommandLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be 1-1000")
			return
		}
		limit = n
	}

	entries, err := s.coord.RecentCommands(limit)
	if err != nil {
		s.logger.Error("list commands", "err", err)
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAPIListClusters(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		s.writeJSON(w, http.StatusOK, []zcl.ClusterDef{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.registry.All())
}

// requestStatus maps request errors to HTTP status codes.
func requestStatus(err error) int {
	switch {
	case errors.Is(err, gadget.ErrMalformedAuxID),
		errors.Is(err, coordinator.ErrInvalidValue),
		errors.Is(err, coordinator.ErrNotWritable):
		return http.StatusBadRequest
	case errors.Is(err, coordinator.ErrUnknownEndpoint):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrCommandFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
