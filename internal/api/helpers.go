package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/vfxbuddies/buddies/internal/inspect"
	"github.com/vfxbuddies/buddies/pkg/bgeo"
	"github.com/vfxbuddies/buddies/pkg/prt"
)

func newInspectionID() string {
	return "insp_" + uuid.NewString()
}

func writeJSON(c *echo.Context, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	res.WriteHeader(status)
	_, err = res.Write(b)
	return err
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return writeJSON(c, status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

// writeInspectError maps a codec failure onto a status and an error code
// naming the sentinel it wraps.
func writeInspectError(c *echo.Context, err error) error {
	if errors.Is(err, inspect.ErrUnknownFormat) {
		return writeError(c, http.StatusUnsupportedMediaType, "invalid_request_error", err.Error(), "body", "unknown_format")
	}
	code := "invalid_container"
	switch {
	case errors.Is(err, bgeo.ErrIO), errors.Is(err, prt.ErrIO):
		code = "truncated"
	case errors.Is(err, bgeo.ErrUnsupportedType), errors.Is(err, prt.ErrUnsupportedType):
		code = "unsupported_type"
	case errors.Is(err, prt.ErrCompression):
		code = "bad_compression"
	case errors.Is(err, bgeo.ErrOutOfRange), errors.Is(err, prt.ErrOutOfRange):
		code = "out_of_range"
	}
	return writeError(c, http.StatusUnprocessableEntity, "invalid_request_error", err.Error(), "body", code)
}
