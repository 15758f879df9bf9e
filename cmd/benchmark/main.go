// Benchmark tool for measuring ClaimHawk fraud detection against labeled claims.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/claims.csv -url http://localhost:8080
//
// The CSV needs a header row with the columns type, amount, doc_count,
// description, voice_confidence, transcript and is_fraud. claim_id is optional.
// Each row is sent to POST /simulate and a FRAUD_REVIEW status counts as an alert.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledClaim is one benchmark row.
type LabeledClaim struct {
	ID              string
	Type            string
	Amount          float64
	DocCount        int
	Description     string
	VoiceConfidence float64
	Transcript      string
	IsFraud         bool
}

type simulateRequest struct {
	ID              string         `json:"id,omitempty"`
	Type            string         `json:"type"`
	EstimatedAmount float64        `json:"estimatedAmount"`
	Description     string         `json:"description,omitempty"`
	Documents       []document     `json:"documents"`
	VoiceData       *voiceData     `json:"voiceData,omitempty"`
	ClaimDetails    map[string]any `json:"claimDetails,omitempty"`
}

type document struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type voiceData struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type simulateResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Status     string `json:"status"`
		Simulation struct {
			FraudScore float64 `json:"fraudScore"`
			FraudScale string  `json:"fraudScale"`
		} `json:"simulation"`
	} `json:"data"`
	Error string `json:"error"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64

	TotalProcessed int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

// Record adds one prediction to the confusion matrix.
func (m *Metrics) Record(predicted, actual bool) {
	switch {
	case predicted && actual:
		atomic.AddInt64(&m.TruePositives, 1)
	case predicted && !actual:
		atomic.AddInt64(&m.FalsePositives, 1)
	case !predicted && !actual:
		atomic.AddInt64(&m.TrueNegatives, 1)
	default:
		atomic.AddInt64(&m.FalseNegatives, 1)
	}
}

// Rates returns precision, recall, F1 and accuracy.
func (m *Metrics) Rates() (precision, recall, f1, accuracy float64) {
	tp, fp, tn, fn := float64(m.TruePositives), float64(m.FalsePositives), float64(m.TrueNegatives), float64(m.FalseNegatives)
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	if total := tp + fp + tn + fn; total > 0 {
		accuracy = (tp + tn) / total
	}
	return precision, recall, f1, accuracy
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled claims CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "ClaimHawk base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum claims to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each claim result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/claims.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Printf("CSV File:   %s\n", *csvPath)
	fmt.Printf("URL:        %s\n", *baseURL)
	fmt.Printf("Tenant ID:  %s\n", *tenantID)
	fmt.Printf("Workers:    %d\n", *workers)
	fmt.Printf("Limit:      %d\n\n", *limit)

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: ClaimHawk not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nStart it with: go run ./cmd/claimhawk serve")
		os.Exit(1)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	claims, err := readClaimsCSV(f, *limit)
	f.Close()
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d claims\n", len(claims))

	start := time.Now()
	metrics := runBenchmark(claims, *baseURL, *tenantID, *workers, *verbose)
	printResults(metrics, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

var requiredColumns = []string{"type", "amount", "doc_count", "description", "voice_confidence", "transcript", "is_fraud"}

// readClaimsCSV parses labeled claims. Malformed rows are skipped.
func readClaimsCSV(r io.Reader, limit int) ([]LabeledClaim, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var claims []LabeledClaim
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}

		amount, err := strconv.ParseFloat(record[col["amount"]], 64)
		if err != nil {
			continue
		}
		docs, _ := strconv.Atoi(record[col["doc_count"]])
		confidence, _ := strconv.ParseFloat(record[col["voice_confidence"]], 64)

		claim := LabeledClaim{
			Type:            record[col["type"]],
			Amount:          amount,
			DocCount:        docs,
			Description:     record[col["description"]],
			VoiceConfidence: confidence,
			Transcript:      record[col["transcript"]],
			IsFraud:         record[col["is_fraud"]] == "1" || strings.EqualFold(record[col["is_fraud"]], "true"),
		}
		if i, ok := col["claim_id"]; ok {
			claim.ID = record[i]
		}
		claims = append(claims, claim)

		if limit > 0 && len(claims) >= limit {
			break
		}
	}
	return claims, nil
}

func runBenchmark(claims []LabeledClaim, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	work := make(chan LabeledClaim, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for claim := range work {
				start := time.Now()
				result, err := simulateClaim(client, baseURL, tenantID, claim)
				atomic.AddInt64(&metrics.ProcessingTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", claim.ID, err)
					}
					continue
				}

				predicted := result.Data.Status == "FRAUD_REVIEW"
				metrics.Record(predicted, claim.IsFraud)

				if verbose {
					mark := "ok "
					if predicted != claim.IsFraud {
						mark = "ERR"
					}
					fmt.Printf("%s %-12s | %-8s | %12.2f | fraud=%-5v | %-13s (%.2f %s)\n",
						mark, claim.ID, claim.Type, claim.Amount, claim.IsFraud,
						result.Data.Status, result.Data.Simulation.FraudScore, result.Data.Simulation.FraudScale)
				}
			}
		}()
	}

	for _, claim := range claims {
		work <- claim
	}
	close(work)
	wg.Wait()

	return metrics
}

func buildRequest(claim LabeledClaim) simulateRequest {
	docs := make([]document, claim.DocCount)
	for i := range docs {
		docs[i] = document{ID: fmt.Sprintf("doc-%d", i+1), Type: "other"}
	}
	req := simulateRequest{
		ID:              claim.ID,
		Type:            claim.Type,
		EstimatedAmount: claim.Amount,
		Description:     claim.Description,
		Documents:       docs,
	}
	if claim.Transcript != "" || claim.VoiceConfidence > 0 {
		req.VoiceData = &voiceData{Transcript: claim.Transcript, Confidence: claim.VoiceConfidence}
	}
	return req
}

func simulateClaim(client *http.Client, baseURL, tenantID string, claim LabeledClaim) (*simulateResponse, error) {
	body, err := json.Marshal(buildRequest(claim))
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/simulate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result simulateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK || !result.Success {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, result.Error)
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\nBENCHMARK RESULTS")
	fmt.Println("=================")
	fmt.Printf("Processed: %d  Errors: %d\n\n", m.TotalProcessed, m.TotalErrors)

	fmt.Println("                 Predicted")
	fmt.Println("              REVIEW    OTHER")
	fmt.Printf("Actual fraud %8d %8d   (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Printf("       clean %8d %8d   (FP, TN)\n", m.FalsePositives, m.TrueNegatives)

	precision, recall, f1, accuracy := m.Rates()
	fmt.Printf("\nPrecision: %.4f\n", precision)
	fmt.Printf("Recall:    %.4f\n", recall)
	fmt.Printf("F1-Score:  %.4f\n", f1)
	fmt.Printf("Accuracy:  %.4f\n", accuracy)

	fmt.Printf("\nDuration:  %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("Latency:   %.2f ms avg\n", float64(m.ProcessingTimeMs)/float64(m.TotalProcessed))
		fmt.Printf("Throughput: %.2f claims/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
}
