package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// conformity mirrors the POST /validate response body.
type conformity struct {
	NomeArquivo       string `json:"nome_arquivo"`
	DataValidacao     string `json:"data_validacao"`
	ExtensaoValida    bool   `json:"extensao_valida"`
	SemSenha          bool   `json:"sem_senha"`
	TamanhoArquivoOK  bool   `json:"tamanho_arquivo_ok"`
	TamanhoPaginaOK   bool   `json:"tamanho_pagina_ok"`
	Assinado          bool   `json:"assinado"`
	NumeroAssinaturas int    `json:"numero_assinaturas"`
	AutenticidadeOK   bool   `json:"autenticidade_ok"`
	IntegridadeOK     bool   `json:"integridade_ok"`
	Pesquisavel       bool   `json:"pesquisavel"`
	ResultadoFinal    string `json:"resultado_final"`
	Pontuacao         int    `json:"pontuacao"`
	MensagemErro      string `json:"mensagem_erro"`
	Erro              string `json:"erro"`
	ErroCodigo        string `json:"erro_codigo"`
}

// scrapeResponse mirrors the tcees scrape API response model.
type scrapeResponse struct {
	Success bool   `json:"success"`
	State   string `json:"state"`
	Record  *struct {
		TargetID string         `json:"target_id"`
		Fields   map[string]any `json:"fields"`
	} `json:"record"`
	Report *struct {
		Fields map[string]struct {
			Passed bool   `json:"passed"`
			Kind   string `json:"kind"`
			Reason string `json:"reason"`
		} `json:"fields"`
	} `json:"report"`
	Attempts int `json:"attempts"`
	Error    *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Hint    string `json:"hint"`
	} `json:"error"`
}

// batchResponse mirrors the batch API response.
type batchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// batchStatusResponse mirrors the batch status API response.
type batchStatusResponse struct {
	ID        string        `json:"id"`
	Status    string        `json:"status"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Results   []*conformity `json:"results"`
}

func main() {
	apiURL := os.Getenv("TCEES_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:5001"
	}
	apiKey := os.Getenv("TCEES_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "TCEES_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"tcees-validator",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	validatePDFTool := mcp.NewTool("validate_pdf",
		mcp.WithDescription("Check a local PDF against the TCE-ES conformity portal (extension, password, size, page size, signature, authenticity, searchable text) and return the verdict and score."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path of the PDF file to check"),
		),
		mcp.WithBoolean("quick",
			mcp.Description("Use the shorter wait for the portal result (default: false)"),
		),
	)
	s.AddTool(validatePDFTool, handleValidatePDF(apiURL, apiKey))

	batchValidateTool := mcp.NewTool("batch_validate",
		mcp.WithDescription("Check up to 3 local PDFs against the TCE-ES conformity portal and return one verdict per file."),
		mcp.WithArray("paths",
			mcp.Required(),
			mcp.Description("Paths of the PDF files to check"),
		),
	)
	s.AddTool(batchValidateTool, handleBatchValidate(apiURL, apiKey))

	scrapeRecordTool := mcp.NewTool("scrape_record",
		mcp.WithDescription("Look up a record on the TCE-ES portal by identifier and return its validated fields (amount, date, status)."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Record identifier, e.g. proc-12345"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept a cached result younger than this many milliseconds (default: 0, always scrape)"),
		),
	)
	s.AddTool(scrapeRecordTool, handleScrapeRecord(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiPost sends a JSON POST request to the API and returns the response body.
func apiPost(ctx context.Context, client *http.Client, apiURL, apiKey, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)
	return do(client, req)
}

// apiUpload posts files as multipart form parts named field.
func apiUpload(ctx context.Context, client *http.Client, apiURL, apiKey, path, field string, files []string, values map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range files {
		if err := addFile(mw, field, name); err != nil {
			return nil, err
		}
	}
	for k, v := range values {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Secret", apiKey)
	return do(client, req)
}

func addFile(mw *multipart.Writer, field, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(name))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

func do(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// pollJobCompletion polls a job endpoint until status is no longer "processing" or context is cancelled.
func pollJobCompletion(ctx context.Context, client *http.Client, apiURL, apiKey, endpoint string) ([]byte, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+endpoint, nil)
			if err != nil {
				return nil, fmt.Errorf("create poll request: %w", err)
			}
			req.Header.Set("X-API-Key", apiKey)

			body, err := do(client, req)
			if err != nil {
				return nil, err
			}

			var status struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if status.Status != "processing" {
				return body, nil
			}
		}
	}
}

// formatConformity renders one check the way an operator reads it.
func formatConformity(c *conformity) string {
	if c == nil {
		return "no result\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s (pontuação %d)\n", c.NomeArquivo, c.ResultadoFinal, c.Pontuacao)
	if c.Erro != "" {
		fmt.Fprintf(&sb, "  erro [%s]: %s\n", c.ErroCodigo, c.Erro)
		return sb.String()
	}
	for _, check := range []struct {
		label string
		ok    bool
	}{
		{"extensão válida", c.ExtensaoValida},
		{"sem senha", c.SemSenha},
		{"tamanho do arquivo", c.TamanhoArquivoOK},
		{"tamanho da página", c.TamanhoPaginaOK},
		{"assinado", c.Assinado},
		{"autenticidade/integridade", c.AutenticidadeOK},
		{"pesquisável", c.Pesquisavel},
	} {
		mark := "✗"
		if check.ok {
			mark = "✓"
		}
		fmt.Fprintf(&sb, "  %s %s\n", mark, check.label)
	}
	if c.MensagemErro != "" {
		fmt.Fprintf(&sb, "  %s\n", c.MensagemErro)
	}
	return sb.String()
}

func handleValidatePDF(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError("path is required"), nil
		}
		values := map[string]string{}
		if quick, _ := request.GetArguments()["quick"].(bool); quick {
			values["quick"] = "1"
		}

		respBody, err := apiUpload(ctx, client, apiURL, apiKey, "/validate", "file", []string{path}, values)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("validate request failed: %v", err)), nil
		}

		var c conformity
		if err := json.Unmarshal(respBody, &c); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if c.ResultadoFinal == "" {
			return mcp.NewToolResultError("unexpected response: " + string(respBody)), nil
		}
		return mcp.NewToolResultText(formatConformity(&c)), nil
	}
}

func handleBatchValidate(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 600 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		paths, err := request.RequireStringSlice("paths")
		if err != nil {
			return mcp.NewToolResultError("paths is required and must be an array of strings"), nil
		}

		respBody, err := apiUpload(ctx, client, apiURL, apiKey, "/api/v1/batch/validate", "files", paths, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}

		var batchResp batchResponse
		if err := json.Unmarshal(respBody, &batchResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse batch response: %v", err)), nil
		}
		if batchResp.ID == "" {
			return mcp.NewToolResultError("batch job creation failed: " + string(respBody)), nil
		}

		resultBody, err := pollJobCompletion(ctx, client, apiURL, apiKey, "/api/v1/batch/"+batchResp.ID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling batch job failed: %v", err)), nil
		}

		var statusResp batchStatusResponse
		if err := json.Unmarshal(resultBody, &statusResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse batch status: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Batch %s: %s (%d/%d completed)\n\n", statusResp.ID, statusResp.Status, statusResp.Completed, statusResp.Total)
		for _, c := range statusResp.Results {
			sb.WriteString(formatConformity(c))
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func handleScrapeRecord(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 180 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		payload := map[string]any{"id": id}
		if maxAge, ok := request.GetArguments()["max_age"]; ok {
			payload["max_age"] = maxAge
		}

		respBody, err := apiPost(ctx, client, apiURL, apiKey, "/api/v1/scrape", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scrape request failed: %v", err)), nil
		}

		var resp scrapeResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !resp.Success {
			var sb strings.Builder
			if resp.Error != nil {
				fmt.Fprintf(&sb, "[%s] %s", resp.Error.Code, resp.Error.Message)
				if resp.Error.Hint != "" {
					fmt.Fprintf(&sb, " (%s)", resp.Error.Hint)
				}
			} else {
				sb.WriteString("scrape failed")
			}
			if resp.Report != nil {
				for name, check := range resp.Report.Fields {
					if !check.Passed {
						fmt.Fprintf(&sb, "\n  %s: %s %s", name, check.Kind, check.Reason)
					}
				}
			}
			return mcp.NewToolResultError(sb.String()), nil
		}

		pretty, err := json.MarshalIndent(resp.Record.Fields, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to format record: %v", err)), nil
		}
		result := fmt.Sprintf("Record %s (%d attempt(s))\n\n%s", resp.Record.TargetID, resp.Attempts, pretty)
		return mcp.NewToolResultText(result), nil
	}
}
