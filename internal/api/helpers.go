// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/kbhujbal/facetrack/internal/logging"
	"github.com/kbhujbal/facetrack/internal/models"
	"github.com/kbhujbal/facetrack/internal/validation"
)

// respondJSON sends any payload as JSON with proper headers.
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondError sends an error envelope.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", code).Err(err).Msg("API Error")
	}

	respondJSON(w, status, models.APIResponse{
		Status: "error",
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	})
}

// validateRequest validates a decoded request body, returning an API error
// on failure.
func validateRequest(v interface{}) *models.APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}
	apiErr := validationErr.ToAPIError()
	return &models.APIError{
		Code:    apiErr.Code,
		Message: apiErr.Message,
		Details: apiErr.Details,
	}
}

// decodeJSON decodes a request body with unknown fields tolerated and a
// sane size cap.
func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}
