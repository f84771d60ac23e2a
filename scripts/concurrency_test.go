//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the loan API.
//
// Usage:
//
//	go run ./scripts/concurrency_test.go <material_id> <reader1_id> [reader2_id ...]
//
// Or use the convenience environment variables:
//
//	MATERIAL_ID=<uuid>  READER_IDS=<uuid1>,<uuid2>,...  go run ./scripts/concurrency_test.go
//
// What it does:
//  1. Fires N goroutines (one per reader) all attempting to borrow the same material simultaneously.
//  2. Prints how many got the loan vs. were rejected with "material unavailable".
//  3. Exactly one loan must succeed — more than one means the exclusivity guarantee is broken.
//
// Prerequisites:
//   - Server must be running (SERVER_ADDR, default http://localhost:8080).
//   - The material and all readers must already exist (POST /materials, POST /readers).

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const defaultServerAddr = "http://localhost:8080"

type loanResult struct {
	ReaderID   string
	Kind       string // failure kind, empty on success
	StatusCode int
	Err        error
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}

	materialID := os.Getenv("MATERIAL_ID")
	readerIDsEnv := os.Getenv("READER_IDS")

	var readerIDs []string
	if readerIDsEnv != "" {
		readerIDs = strings.Split(readerIDsEnv, ",")
	}

	// Support positional args: script <material_id> [reader_ids...]
	args := os.Args[1:]
	if len(args) >= 1 {
		materialID = args[0]
	}
	if len(args) >= 2 {
		readerIDs = args[1:]
	}

	if materialID == "" {
		log.Fatal("Usage: MATERIAL_ID=<uuid> READER_IDS=<r1,r2,...> go run ./scripts/concurrency_test.go\n" +
			"  or: go run ./scripts/concurrency_test.go <material_id> <reader1_id> [reader2_id ...]")
	}
	if len(readerIDs) == 0 {
		log.Fatal("At least one reader ID must be provided via READER_IDS env or positional args")
	}

	fmt.Printf("=== Loan Concurrency Test ===\n")
	fmt.Printf("Server   : %s\n", serverAddr)
	fmt.Printf("Material : %s\n", materialID)
	fmt.Printf("Readers  : %d\n\n", len(readerIDs))

	results := make([]loanResult, len(readerIDs))
	var wg sync.WaitGroup

	// Fire all goroutines simultaneously using a barrier.
	start := make(chan struct{})

	for i, rid := range readerIDs {
		wg.Add(1)
		go func(idx int, readerID string) {
			defer wg.Done()
			<-start // wait for the barrier
			results[idx] = attemptLoan(serverAddr, materialID, strings.TrimSpace(readerID))
		}(i, rid)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)

	wg.Wait()
	fmt.Println("All requests completed.")
	fmt.Println()

	var loans, unavailable, failures int
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures++
			fmt.Printf("  [ERR ] reader=%-38s err=%v\n", r.ReaderID, r.Err)
		case r.StatusCode == http.StatusCreated:
			loans++
			fmt.Printf("  [LOAN] reader=%-38s status=%d\n", r.ReaderID, r.StatusCode)
		case r.Kind == "MATERIAL_UNAVAILABLE":
			unavailable++
			fmt.Printf("  [BUSY] reader=%-38s status=%d kind=%s\n", r.ReaderID, r.StatusCode, r.Kind)
		default:
			failures++
			fmt.Printf("  [FAIL] reader=%-38s status=%d kind=%s\n", r.ReaderID, r.StatusCode, r.Kind)
		}
	}

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Loans       : %d\n", loans)
	fmt.Printf("Unavailable : %d\n", unavailable)
	fmt.Printf("Failures    : %d\n", failures)
	fmt.Printf("Total       : %d\n\n", len(readerIDs))

	fmt.Println("--- Invariant Check ---")
	fmt.Println("At most one outstanding loan may hold a given material.")
	if loans > 1 {
		fmt.Printf("[BROKEN] %d readers got the same material — exclusivity is violated.\n", loans)
		os.Exit(1)
	}
	fmt.Printf("Loans recorded: %d — exclusivity holds.\n", loans)

	if failures > 0 {
		fmt.Printf("\n[WARNING] %d request(s) failed — check server logs for details.\n", failures)
		os.Exit(1)
	}
}

// attemptLoan sends POST /loans for the given reader/material and parses the
// failure kind, if any, from the JSON response.
func attemptLoan(serverAddr, materialID, readerID string) loanResult {
	url := fmt.Sprintf("%s/loans", serverAddr)
	body := fmt.Sprintf(`{"reader_id":"%s","material_ids":["%s"]}`, readerID, materialID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		return loanResult{ReaderID: readerID, Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return loanResult{ReaderID: readerID, StatusCode: resp.StatusCode, Err: fmt.Errorf("bad JSON: %s", raw)}
	}

	kind, _ := parsed["kind"].(string)
	return loanResult{
		ReaderID:   readerID,
		Kind:       kind,
		StatusCode: resp.StatusCode,
	}
}
