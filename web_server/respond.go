package web_server

import (
	"encoding/json"
	"github.com/lefinal/confcomp-server/errors"
	"github.com/lefinal/confcomp-server/event"
	"go.uber.org/zap"
	"net/http"
)

// statusFromCode maps an errors.Code to the HTTP status to respond with.
func statusFromCode(code errors.Code) int {
	switch code {
	case errors.ErrBadRequest, errors.ErrProtocolViolation:
		return http.StatusBadRequest
	case errors.ErrNotFound:
		return http.StatusNotFound
	case errors.ErrUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrForbidden:
		return http.StatusForbidden
	case errors.ErrCommunication:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondErr logs the given error and responds with event.ErrorEventPayload.
// Details are only revealed for errors blamed on the user.
func respondErr(logger *zap.Logger, w http.ResponseWriter, err error) {
	errors.Log(logger, err)
	e, _ := errors.Cast(err)
	respondJSON(logger, w, statusFromCode(e.Code), event.ErrorEventPayloadFromError(err))
}

// respondJSON responds with the given status and payload encoded as JSON.
func respondJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(payload)
	if err != nil {
		errors.Log(logger, errors.FromErr("write response", errors.ErrCommunication, err, nil))
	}
}

// decodeBody decodes the JSON request body into the given target.
func decodeBody(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	err := decoder.Decode(target)
	if err != nil {
		return errors.NewBadRequestErr("invalid request body", err, nil)
	}
	return nil
}
