// Package tcees defines the TCE-ES portal pages the service reads and
// turns validated conformity readings into the result clients expect.
package tcees

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/use-agent/tcees/config"
	"github.com/use-agent/tcees/extract"
	"github.com/use-agent/tcees/models"
)

// Conformity cell fields, in page order.
const (
	FieldExtensao       = "extensao_valida"
	FieldSemSenha       = "sem_senha"
	FieldTamanhoArquivo = "tamanho_arquivo_ok"
	FieldTamanhoPagina  = "tamanho_pagina_ok"
	FieldAssinado       = "assinado"
	FieldAutenticidade  = "autenticidade_ok"
	FieldPesquisavel    = "pesquisavel"
	FieldResultado      = "resultado_final"
)

// ConformityFields lists the eight result cells in page order.
var ConformityFields = []string{
	FieldExtensao,
	FieldSemSenha,
	FieldTamanhoArquivo,
	FieldTamanhoPagina,
	FieldAssinado,
	FieldAutenticidade,
	FieldPesquisavel,
	FieldResultado,
}

// The result cells render under slightly different wrappers depending on
// the portal version.
var cellSelectors = extract.MustCompileSelectors(
	"#validacoes-arquivo div.row.text-center div.d-inline-block",
	"#validacoes-arquivo div.d-inline-block",
	"#validacoes-body #validacoes-arquivo div.d-inline-block",
)

// ConformitySchema describes the PDF conformity checker at url.
func ConformitySchema(url string) *models.Schema {
	fields := make([]models.FieldSpec, len(ConformityFields))
	for i, name := range ConformityFields {
		fields[i] = models.FieldSpec{
			Name:     name,
			Nth:      i + 1,
			Source:   models.SourceHTML,
			Classify: ClassifyStatus,
			Kind:     models.KindStatus,
		}
	}
	return &models.Schema{
		Name:           models.ProfileConformity,
		URL:            url,
		ReadySelector:  `input[type="file"]`,
		UploadSelector: `input[type="file"]`,
		Settle:         &models.SettleSpec{MinResolved: 6},
		ListSelectors:  cellSelectors,
		Fields:         fields,
	}
}

// RecordSchema describes the record lookup page. urlTemplate carries an
// {id} placeholder.
func RecordSchema(urlTemplate string) *models.Schema {
	return &models.Schema{
		Name:          models.ProfileRecord,
		URL:           urlTemplate,
		IDPattern:     regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]{0,63}$`),
		ReadySelector: "#detalhe-processo, .detalhe-processo, .alert-nenhum-registro",
		NotFoundSelectors: []string{
			".alert-nenhum-registro",
			"#processo-nao-encontrado",
		},
		NotFoundTexts: []string{
			"processo não encontrado",
			"nenhum registro encontrado",
		},
		Fields: []models.FieldSpec{
			{
				Name:      "amount",
				Selectors: []string{`[data-campo="valor"]`, "#valor"},
				Kind:      models.KindNumber,
				Required:  true,
				Min:       models.Float(0),
			},
			{
				Name:      "date",
				Selectors: []string{`[data-campo="data"]`, "#data-autuacao"},
				Kind:      models.KindDate,
				Required:  true,
				Earliest:  "1990-01-01",
				Latest:    "today",
			},
			{
				Name:      "status",
				Selectors: []string{`[data-campo="situacao"]`, "#situacao"},
				Kind:      models.KindEnum,
				Required:  true,
				Enum:      []string{"aprovado", "reprovado", "em análise", "em analise", "arquivado", "pendente"},
			},
			{
				Name:      "orgao",
				Selectors: []string{`[data-campo="orgao"]`, "#orgao"},
				Kind:      models.KindText,
			},
		},
	}
}

// Profiles returns every schema keyed by profile name. It fails when a
// configured URL leaves a selector or template unusable.
func Profiles(cfg config.PortalConfig) (map[string]*models.Schema, error) {
	profiles := map[string]*models.Schema{
		models.ProfileRecord:     RecordSchema(cfg.RecordURL),
		models.ProfileConformity: ConformitySchema(cfg.ConformityURL),
	}
	for name, s := range profiles {
		if err := CheckSchema(s); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
	}
	return profiles, nil
}

// CheckSchema compiles every selector of s and checks its URL.
func CheckSchema(s *models.Schema) error {
	if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
		return fmt.Errorf("url %q is not http(s)", s.URL)
	}
	sels := []string{s.ReadySelector}
	if s.UploadSelector != "" {
		sels = append(sels, s.UploadSelector)
	}
	sels = append(sels, s.NotFoundSelectors...)
	sels = append(sels, s.ListSelectors...)
	for _, f := range s.Fields {
		if s.ListField(f) {
			continue
		}
		if len(f.Selectors) == 0 {
			return fmt.Errorf("field %s has no selector", f.Name)
		}
		sels = append(sels, f.Selectors...)
	}
	return extract.CompileSelectors(sels)
}
