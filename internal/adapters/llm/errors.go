package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
	"google.golang.org/grpc/codes"

	"github.com/PabloGalante/oneiros/internal/errorsx"
)

// classify wraps a provider error with the operation name and, when the
// provider says the key can't reach the model, the credential reason.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	if isCredentialError(err) {
		return errorsx.Wrap(wrapped, errorsx.ReasonCredentialMissing)
	}
	return wrapped
}

func isCredentialError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && credentialStatus(apiErr.Code, apiErr.Status) {
		return true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && credentialStatus(apiErrPtr.Code, apiErrPtr.Status) {
		return true
	}

	var gaxErr *apierror.APIError
	if errors.As(err, &gaxErr) {
		if credentialStatus(gaxErr.HTTPCode(), "") {
			return true
		}
		if st := gaxErr.GRPCStatus(); st != nil {
			switch st.Code() {
			case codes.NotFound, codes.PermissionDenied, codes.Unauthenticated:
				return true
			}
		}
	}

	return strings.Contains(err.Error(), errorsx.EntityNotFoundMessage)
}

func credentialStatus(code int, status string) bool {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	switch status {
	case "NOT_FOUND", "PERMISSION_DENIED", "UNAUTHENTICATED":
		return true
	}
	return false
}
