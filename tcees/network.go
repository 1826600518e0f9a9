package tcees

import (
	"github.com/use-agent/tcees/models"
)

// CodeValidationError is the fallback code of a failed conformity check.
const CodeValidationError = "TCEES_VALIDATION_ERROR"

var friendlyMessages = map[string]string{
	models.HintNetworkBlocked:    "Servidor sem acesso ao site do TCEES (ERR_TUNNEL_CONNECTION_FAILED). Verifique restrições de rede, proxy ou allowlist.",
	models.HintDNS:               "Falha de DNS ao resolver o domínio do TCEES.",
	models.HintTimeout:           "Tempo limite ao conectar no site do TCEES.",
	models.HintConnectionRefused: "Conexão recusada ao acessar o TCEES. Pode ser bloqueio de rede, firewall ou allowlist.",
	models.HintConnectionClosed:  "Conexão encerrada pelo destino ou pela rede ao tentar acessar o TCEES.",
}

// FriendlyError returns the code and Portuguese message reported to
// clients of POST /validate for a scrape failure.
func FriendlyError(se *models.ScrapeError) (code, message string) {
	if msg, ok := friendlyMessages[se.Hint]; ok {
		return se.Hint, msg
	}
	if se.Code == models.ErrCodeTimeout {
		return models.HintTimeout, friendlyMessages[models.HintTimeout]
	}
	return CodeValidationError, se.Message
}

// Failed builds the conformity body for a scrape failure.
func Failed(fileName string, se *models.ScrapeError) *models.Conformity {
	code, msg := FriendlyError(se)
	return models.ConformityError(fileName, msg, code, se.Error())
}
