package collector

import (
	"context"
	"errors"
	"os"
	"strings"

	serrors "github.com/Guliveer/vitalis/sampler/internal/errors"
)

// Classify converts a raw provider error into a classified one. Errors that
// already carry a kind are returned unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *serrors.Error
	if errors.As(err, &classified) {
		return err
	}
	return serrors.Wrap(err, kindFor(err), op)
}

func kindFor(err error) serrors.Kind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return serrors.KindTimeout
	case errors.Is(err, os.ErrPermission):
		return serrors.KindPermissionDenied
	case strings.Contains(strings.ToLower(err.Error()), "not implemented"):
		return serrors.KindUnsupportedPlatform
	case errors.Is(err, os.ErrNotExist):
		return serrors.KindResourceUnavailable
	default:
		return serrors.KindAPICallFailed
	}
}
