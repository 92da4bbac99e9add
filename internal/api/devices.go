package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// commandAccepted is the response body for accepted device commands.
// Lock confirmations arrive later on the device connection, so the
// status is always pending here.
type commandAccepted struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// handleList returns the connected device IMEIs as comma-joined plain
// text.
func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response
	w.Write([]byte(strings.Join(s.registry.List(), ",")))
}

// handleUnlock asks a connected lock to open.
func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	imei := chi.URLParam(r, "imei")

	session := s.registry.Lookup(imei)
	if session == nil {
		writeNotFound(w, "device not connected")
		return
	}

	if err := session.SendUnlock(); err != nil {
		s.logger.Error("unlock command failed", "imei", imei, "error", err)
		writeBadGateway(w, "command could not be delivered")
		return
	}

	s.logger.Info("unlock requested", "imei", imei)
	writeJSON(w, http.StatusOK, commandAccepted{Success: true, Status: "pending"})
}

// handlePosition asks a connected lock for a position report. The report
// arrives later as an inbound packet and fans out through events.
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	imei := chi.URLParam(r, "imei")

	session := s.registry.Lookup(imei)
	if session == nil {
		writeNotFound(w, "device not connected")
		return
	}

	if err := session.SendLocate(); err != nil {
		s.logger.Error("locate command failed", "imei", imei, "error", err)
		writeBadGateway(w, "command could not be delivered")
		return
	}

	s.logger.Info("position requested", "imei", imei)
	writeJSON(w, http.StatusOK, commandAccepted{Success: true, Status: "pending"})
}

// deviceInfo is the response body for a single connected device.
type deviceInfo struct {
	DeviceID   string `json:"device_id"`
	DeviceCode string `json:"device_code"`
	Connected  bool   `json:"connected"`
	Remote     string `json:"remote_addr"`
}

// handleGetDevice reports whether a device is currently connected.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	imei := chi.URLParam(r, "imei")

	session := s.registry.Lookup(imei)
	if session == nil {
		writeNotFound(w, "device not connected")
		return
	}

	ident, _ := session.Identity()
	writeJSON(w, http.StatusOK, deviceInfo{
		DeviceID:   ident.IMEI,
		DeviceCode: ident.DeviceCode,
		Connected:  true,
		Remote:     session.RemoteAddr(),
	})
}
