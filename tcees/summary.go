package tcees

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/use-agent/tcees/models"
)

// MessageUnreadable is reported when the result cells could not be read.
const MessageUnreadable = "Não foi possível interpretar a resposta do TCEES."

// Summarize maps a validated conformity reading to the eight indicators,
// the score and the verdict. It reports false when no check cell was
// resolved, in which case the caller should fall back to Unreadable.
func Summarize(rec *models.ValidatedRecord, pageText string) (*models.Conformity, bool) {
	resolved := 0
	ok := func(field string) bool {
		s := rec.String(field)
		if s != "" && field != FieldResultado {
			resolved++
		}
		return s == models.StatusOK
	}

	c := &models.Conformity{
		ExtensaoValida:   ok(FieldExtensao),
		SemSenha:         ok(FieldSemSenha),
		TamanhoArquivoOK: ok(FieldTamanhoArquivo),
		TamanhoPaginaOK:  ok(FieldTamanhoPagina),
		Assinado:         ok(FieldAssinado),
		AutenticidadeOK:  ok(FieldAutenticidade),
		Pesquisavel:      ok(FieldPesquisavel),
	}
	if resolved == 0 {
		return nil, false
	}

	// The portal reports authenticity and integrity in one cell.
	c.IntegridadeOK = c.AutenticidadeOK
	if c.Assinado {
		c.NumeroAssinaturas = 1
	}

	switch rec.String(FieldResultado) {
	case models.StatusOK:
		c.ResultadoFinal = models.VerdictValidated
	case models.StatusFailed:
		c.ResultadoFinal = models.VerdictNotValidated
	default:
		if c.ChecksPassed() == 7 {
			c.ResultadoFinal = models.VerdictValidated
		} else {
			c.ResultadoFinal = models.VerdictNotValidated
		}
	}
	c.Score()

	text := strings.ToLower(pageText)
	if !c.Assinado && (strings.Contains(text, "nao assinado") || strings.Contains(text, "não assinado")) {
		c.MensagemErro = "Arquivo não assinado"
	}
	return c, true
}

// Unreadable is the result when the portal answered but its cells could
// not be interpreted. Only the checks that can be made locally are set.
func Unreadable(fileName string, size int64) *models.Conformity {
	c := &models.Conformity{
		NomeArquivo:      fileName,
		TamanhoBytes:     size,
		ExtensaoValida:   strings.EqualFold(filepath.Ext(fileName), ".pdf"),
		TamanhoArquivoOK: size > 0,
		ResultadoFinal:   models.VerdictError,
		MensagemErro:     MessageUnreadable,
	}
	c.Score()
	return c
}

// Stamp records the file identity and validation time on c.
func Stamp(c *models.Conformity, fileName string, size int64, at time.Time) {
	c.NomeArquivo = fileName
	c.TamanhoBytes = size
	c.DataValidacao = at.Format(time.DateTime)
}
