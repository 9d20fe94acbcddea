package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/lesson"
	"github.com/trezcool/shule/core/role"
	"github.com/trezcool/shule/core/subscription"
)

var (
	errHttpForbidden  = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpLoading    = echo.NewHTTPError(http.StatusServiceUnavailable, "loading")
	errHttpBadGateway = echo.NewHTTPError(http.StatusBadGateway, "backend unavailable, please retry")
	errHttpLocked     = echo.NewHTTPError(http.StatusPaymentRequired, lesson.ErrLessonLocked.Error())
	errHttpNotStudent = echo.NewHTTPError(http.StatusForbidden, "no student profile")
	errHttpNotTeacher = echo.NewHTTPError(http.StatusForbidden, "no teacher profile")
)

// isConflict reports whether err is a claim ledger write lost to another writer.
func isConflict(err error) bool {
	switch err {
	case subscription.ErrClaimExists, subscription.ErrStatusChanged, subscription.ErrPendingClaimExist:
		return true
	}
	return false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch cause {
		case core.ErrNotReady:
			cause = errHttpLoading
		case role.ErrAccessDenied:
			cause = errHttpForbidden
		case lesson.ErrLessonLocked:
			cause = errHttpLocked
		case subscription.ErrClaimExists, subscription.ErrStatusChanged:
			cause = echo.NewHTTPError(http.StatusConflict, cause.Error())
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
			if isConflict(origErr.Err) {
				code = http.StatusConflict
			}
		case *core.NotFoundError:
			code = http.StatusNotFound
			message = origErr.Error()
		case *core.BackendError:
			code = errHttpBadGateway.Code
			message = errHttpBadGateway.Message
			logger.Warn(origErr.Error(), err, getContextIdentity(ctx))
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg
			logger.Error(msg, errors.Wrap(err, msg), getContextIdentity(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code >= http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
