package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:5001", "tcees API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	ids    = flag.String("ids", "proc-12345", "Comma-separated record identifiers to scrape")
	runs   = flag.Int("runs", 3, "Number of runs per record for averaging")
	maxAge = flag.Int64("max-age", 0, "max_age sent with each request, in ms (0 disables the cache)")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// --- Request / Response types (mirrors models package) ---

type scrapeRequest struct {
	ID     string `json:"id"`
	MaxAge int64  `json:"max_age,omitempty"`
}

type scrapeResponse struct {
	Success     bool         `json:"success"`
	State       string       `json:"state"`
	Attempts    int          `json:"attempts"`
	Timing      timingInfo   `json:"timing"`
	CacheStatus string       `json:"cache_status"`
	Error       *errorDetail `json:"error,omitempty"`
}

type timingInfo struct {
	TotalMs    int64 `json:"total_ms"`
	ScrapeMs   int64 `json:"scrape_ms"`
	ValidateMs int64 `json:"validate_ms"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Benchmark result types ---

type runResult struct {
	Run         int    `json:"run"`
	HTTPStatus  int    `json:"http_status"`
	WallMs      int64  `json:"wall_ms"`
	TotalMs     int64  `json:"total_ms"`
	ScrapeMs    int64  `json:"scrape_ms"`
	ValidateMs  int64  `json:"validate_ms"`
	Attempts    int    `json:"attempts"`
	State       string `json:"state"`
	CacheStatus string `json:"cache_status,omitempty"`
	Success     bool   `json:"success"`
	ErrorCode   string `json:"error_code,omitempty"`
	Error       string `json:"error,omitempty"`
}

type recordAverages struct {
	TotalMs    float64 `json:"total_ms"`
	ScrapeMs   float64 `json:"scrape_ms"`
	ValidateMs float64 `json:"validate_ms"`
	Attempts   float64 `json:"attempts"`
}

type recordResult struct {
	ID          string          `json:"id"`
	Runs        []runResult     `json:"runs"`
	SuccessRate float64         `json:"success_rate"`
	Averages    *recordAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp     string         `json:"timestamp"`
	APIURL        string         `json:"api_url"`
	RunsPerRecord int            `json:"runs_per_record"`
	Results       []recordResult `json:"results"`
}

func main() {
	flag.Parse()

	records := splitIDs(*ids)
	if len(records) == 0 {
		fmt.Fprintln(os.Stderr, "Error: -ids is empty")
		os.Exit(1)
	}

	fmt.Println("=== tcees Scrape Benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Records:   %d\n", len(records))
	fmt.Printf("Runs/ID:   %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		APIURL:        *apiURL,
		RunsPerRecord: *runs,
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	for _, id := range records {
		fmt.Printf("Benchmarking %s ...\n", id)
		rr := recordResult{ID: id}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			r := benchmarkRecord(client, id, i)
			if r.Success {
				fmt.Printf("OK  %dms  %d attempt(s) %s\n", r.TotalMs, r.Attempts, r.CacheStatus)
			} else {
				fmt.Printf("FAILED [%s]: %s\n", r.ErrorCode, r.Error)
			}
			rr.Runs = append(rr.Runs, r)
		}

		rr.SuccessRate, rr.Averages = summarize(rr.Runs)
		report.Results = append(report.Results, rr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func benchmarkRecord(client *http.Client, id string, run int) runResult {
	rr := runResult{Run: run}

	bodyBytes, err := json.Marshal(scrapeRequest{ID: id, MaxAge: *maxAge})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/scrape", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()
	rr.WallMs = time.Since(start).Milliseconds()
	rr.HTTPStatus = resp.StatusCode

	var sr scrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = sr.Success
	rr.State = sr.State
	rr.Attempts = sr.Attempts
	rr.CacheStatus = sr.CacheStatus
	rr.TotalMs = sr.Timing.TotalMs
	rr.ScrapeMs = sr.Timing.ScrapeMs
	rr.ValidateMs = sr.Timing.ValidateMs
	if sr.Error != nil {
		rr.ErrorCode = sr.Error.Code
		rr.Error = sr.Error.Message
	}
	return rr
}

func summarize(runs []runResult) (float64, *recordAverages) {
	var successCount int
	var avg recordAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.TotalMs += float64(r.TotalMs)
		avg.ScrapeMs += float64(r.ScrapeMs)
		avg.ValidateMs += float64(r.ValidateMs)
		avg.Attempts += float64(r.Attempts)
	}

	if successCount == 0 {
		return 0, nil
	}

	n := float64(successCount)
	avg.TotalMs /= n
	avg.ScrapeMs /= n
	avg.ValidateMs /= n
	avg.Attempts /= n
	return n / float64(len(runs)), &avg
}

func printTable(results []recordResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Record\tAvg Latency\tAvg Attempts\tSuccess\tErrors\n")
	fmt.Fprintf(w, "──────\t───────────\t────────────\t───────\t──────\n")

	for _, r := range results {
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t0%%\t%s\n", truncate(r.ID, 40), errorCodes(r.Runs))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%.1f\t%.0f%%\t%s\n",
			truncate(r.ID, 40),
			int64(r.Averages.TotalMs),
			r.Averages.Attempts,
			r.SuccessRate*100,
			errorCodes(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

// errorCodes lists the distinct error codes seen across runs.
func errorCodes(runs []runResult) string {
	seen := map[string]bool{}
	for _, r := range runs {
		if r.ErrorCode != "" {
			seen[r.ErrorCode] = true
		}
	}
	if len(seen) == 0 {
		return "-"
	}
	codes := make([]string, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return strings.Join(codes, ",")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
