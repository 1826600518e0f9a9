package tcees

import (
	"strings"

	"github.com/use-agent/tcees/models"
)

var (
	successMarkers = []string{"fa-check", "text-success", `title="ok"`}
	failureMarkers = []string{
		"fa-close",
		"fa-times",
		"text-danger",
		"nao assinado",
		"não assinado",
		"invalido",
		"inválido",
		"erro",
	}
)

// ClassifyStatus reads a result cell's inner HTML. It returns
// models.StatusOK, models.StatusFailed, or "" while the cell has no icon
// yet. A cell carrying both kinds of marker is a failure.
func ClassifyStatus(cellHTML string) string {
	html := strings.ToLower(cellHTML)
	failed := containsAny(html, failureMarkers)
	switch {
	case failed:
		return models.StatusFailed
	case containsAny(html, successMarkers):
		return models.StatusOK
	default:
		return ""
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
