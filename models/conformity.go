package models

// Final verdicts of a conformity check.
const (
	VerdictValidated    = "VALIDADO"
	VerdictNotValidated = "NÃO VALIDADO"
	VerdictError        = "ERRO"
)

// Conformity is the result of checking a PDF against the TCE-ES
// conformity portal. The JSON shape is what existing clients of POST
// /validate expect.
type Conformity struct {
	NomeArquivo   string `json:"nome_arquivo"`
	TamanhoBytes  int64  `json:"tamanho_bytes,omitempty"`
	DataValidacao string `json:"data_validacao,omitempty"`

	ExtensaoValida    bool `json:"extensao_valida"`
	SemSenha          bool `json:"sem_senha"`
	TamanhoArquivoOK  bool `json:"tamanho_arquivo_ok"`
	TamanhoPaginaOK   bool `json:"tamanho_pagina_ok"`
	Assinado          bool `json:"assinado"`
	NumeroAssinaturas int  `json:"numero_assinaturas"`
	AutenticidadeOK   bool `json:"autenticidade_ok"`
	IntegridadeOK     bool `json:"integridade_ok"`
	Pesquisavel       bool `json:"pesquisavel"`

	ResultadoFinal string `json:"resultado_final"`
	Pontuacao      int    `json:"pontuacao"`

	TitularCertificado  string `json:"titular_certificado"`
	EmissorCertificado  string `json:"emissor_certificado"`
	ValidadeCertificado string `json:"validade_certificado"`
	MensagemErro        string `json:"mensagem_erro,omitempty"`

	Erro        string `json:"erro,omitempty"`
	ErroCodigo  string `json:"erro_codigo,omitempty"`
	ErroTecnico string `json:"erro_tecnico,omitempty"`
}

// ChecksPassed counts the seven individual checks that passed. The
// authenticity cell covers integrity too and is counted once.
func (c *Conformity) ChecksPassed() int {
	n := 0
	for _, ok := range []bool{
		c.ExtensaoValida,
		c.SemSenha,
		c.TamanhoArquivoOK,
		c.TamanhoPaginaOK,
		c.Assinado,
		c.AutenticidadeOK,
		c.Pesquisavel,
	} {
		if ok {
			n++
		}
	}
	return n
}

// Score sets Pontuacao from the passed checks (0-100).
func (c *Conformity) Score() {
	c.Pontuacao = c.ChecksPassed() * 100 / 7
}

// ConformityError builds the error body returned when no reading was
// possible.
func ConformityError(fileName, message, code, technical string) *Conformity {
	return &Conformity{
		NomeArquivo:    fileName,
		ResultadoFinal: VerdictError,
		Erro:           message,
		ErroCodigo:     code,
		ErroTecnico:    technical,
	}
}
