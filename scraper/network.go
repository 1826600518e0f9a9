package scraper

import (
	"context"
	"errors"
	"strings"

	"github.com/go-rod/rod"

	"github.com/use-agent/tcees/models"
)

// networkFailures maps Chromium net error names to an error code and the
// hint reported to operators. Order matters: the first match wins.
var networkFailures = []struct {
	marker string
	code   string
	hint   string
}{
	{"ERR_TUNNEL_CONNECTION_FAILED", models.ErrCodeNavigation, models.HintNetworkBlocked},
	{"ERR_NAME_NOT_RESOLVED", models.ErrCodeNavigation, models.HintDNS},
	{"ERR_CONNECTION_TIMED_OUT", models.ErrCodeTimeout, models.HintTimeout},
	{"ERR_TIMED_OUT", models.ErrCodeTimeout, models.HintTimeout},
	{"TIMEOUT", models.ErrCodeTimeout, models.HintTimeout},
	{"ERR_CONNECTION_REFUSED", models.ErrCodeNavigation, models.HintConnectionRefused},
	{"ERR_CONNECTION_CLOSED", models.ErrCodeNavigation, models.HintConnectionClosed},
}

// classifyNetworkError recognises a Chromium network failure in text.
func classifyNetworkError(text string) (code, hint string, ok bool) {
	upper := strings.ToUpper(text)
	for _, f := range networkFailures {
		if strings.Contains(upper, f.marker) {
			return f.code, f.hint, true
		}
	}
	return "", "", false
}

// categorizeError wraps raw errors into typed ScrapeErrors so the retry
// loop and the API layer can branch on them. fallback is the code used for
// errors nothing else recognises.
func categorizeError(err error, fallback, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}

	var navErr *rod.NavigationError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	case errors.Is(err, ErrSessionLost):
		return models.NewScrapeError(models.ErrCodeBrowserCrash, msg, err)
	case errors.As(err, &navErr):
		if code, hint, ok := classifyNetworkError(navErr.Reason); ok {
			return models.NewScrapeError(code, msg, err).WithHint(hint)
		}
		return models.NewScrapeError(models.ErrCodeNavigation, msg, err)
	}

	if code, hint, ok := classifyNetworkError(err.Error()); ok {
		return models.NewScrapeError(code, msg, err).WithHint(hint)
	}
	return models.NewScrapeError(fallback, msg, err)
}
