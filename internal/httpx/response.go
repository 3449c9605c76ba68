// Copyright 2026 Cloudgate Authors.
// SPDX-License-Identifier: AGPL-3.0

package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cloudgate/upload-gateway/internal/apperror"
	"github.com/cloudgate/upload-gateway/internal/logging"
)

// RespondJSON marshals obj, sets an exact Content-Length (in bytes, not
// characters — critical for non-ASCII payloads) and writes it with the
// given status code.
func RespondJSON(w http.ResponseWriter, statusCode int, obj any) error {
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(statusCode)
	_, err = w.Write(b)
	return err
}

// RespondError renders err as the standard error envelope
// {"request_id":"...","desc":"..."} and logs it at the level its status
// warrants. Any error not already an *apperror.Error is normalized to an
// InternalError so a raw Go error string never reaches the client.
func RespondError(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	appErr := apperror.As(err)

	l := logging.FromRequest(r).WithError(appErr).WithField("request_id", requestID)
	if appErr.Status < 500 {
		l.Info("client error")
	} else {
		l.Error("server error")
	}

	w.Header().Set("Connection", "close")
	body := map[string]string{
		"request_id": requestID,
		"desc":       appErr.Desc,
	}
	if respondErr := RespondJSON(w, appErr.Status, body); respondErr != nil {
		logging.FromRequest(r).WithError(respondErr).Error("error writing error response")
	}
}
