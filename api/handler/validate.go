package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/tcees/config"
	"github.com/use-agent/tcees/models"
	"github.com/use-agent/tcees/service"
)

// Validate returns a handler for POST /validate.
//
// Form fields: file (the PDF), quick=1 for the shorter settle budget and
// max_age (ms) to accept a cached result for the same content. Every
// outcome of the check itself, failures included, is a 200 with the
// conformity body; only rejected uploads get an error status.
func Validate(svc *service.Service, cfg config.UploadConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			conformityAbort(c, http.StatusBadRequest, models.ErrCodeNoFile, "Nenhum arquivo enviado (campo 'file').")
			return
		}
		if ue := checkUpload(fh, cfg); ue != nil {
			conformityAbort(c, ue.status, ue.code, ue.message)
			return
		}

		up, err := saveUpload(fh, cfg)
		if err != nil {
			slog.Error("saving upload failed", "file", fh.Filename, "error", err)
			conformityAbort(c, http.StatusInternalServerError, models.ErrCodeInternal, "Falha ao receber o arquivo.")
			return
		}
		defer up.remove()

		target, err := up.target(c.PostForm("quick") == "1")
		if err != nil {
			conformityAbort(c, http.StatusBadRequest, models.ErrCodeInvalidInput, err.Error())
			return
		}

		slog.Info("validating upload", "file", up.name, "size_mb", float64(up.size)/(1<<20))

		maxAge, _ := strconv.ParseInt(c.PostForm("max_age"), 10, 64)
		out := svc.Process(c.Request.Context(), target, time.Duration(maxAge)*time.Millisecond)
		result := out.ConformityResult(up.name, up.size, time.Now())

		slog.Info("validation finished",
			"file", up.name,
			"resultado", result.ResultadoFinal,
			"pontuacao", result.Pontuacao,
			"state", out.State,
			"cache", out.CacheStatus,
		)
		c.JSON(http.StatusOK, result)
	}
}
