package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/layer-3/mercuria/core"
)

type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ParseResponseError maps a non-2xx reply to a classified APIError
func ParseResponseError(status int, body []byte) error {
	msg := errorMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}

	return &core.APIError{
		Kind:    classify(status),
		Status:  status,
		Message: msg,
	}
}

func classify(status int) core.Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.KindAuth
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return core.KindValidation
	case http.StatusConflict:
		return core.KindConflict
	default:
		return core.KindRejected
	}
}

func errorMessage(body []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	if env.Error != "" {
		return strings.TrimSpace(env.Error)
	}
	return strings.TrimSpace(env.Message)
}
