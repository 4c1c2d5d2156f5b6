package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"
)

// mock-classifier feeds the calibration engine with synthetic
// prediction/outcome records so local passes have data to chew on. The
// generated confidences are deliberately a little overconfident in the top
// band so reports produce interesting recommendations.

type outcomeRecord struct {
	IssueID               string    `json:"issue_id"`
	PredictedConfidence   float64   `json:"predicted_confidence"`
	PredictedAction       string    `json:"predicted_action"`
	ActualOutcome         string    `json:"actual_outcome"`
	ResolutionTimeMinutes float64   `json:"resolution_time_minutes"`
	IssueType             string    `json:"issue_type"`
	Timestamp             time.Time `json:"timestamp"`
	Severity              string    `json:"severity,omitempty"`
	Component             string    `json:"component,omitempty"`
}

var (
	issueTypes = []string{"broken", "missing", "improvement"}
	severities = []string{"low", "medium", "high"}
	components = []string{"checkout", "payments", "inventory", "auth"}
)

func main() {
	var (
		target   string
		count    int
		interval time.Duration
		seed     int64
	)
	flag.StringVar(&target, "target", "http://localhost:8085", "Calibration engine base URL")
	flag.IntVar(&count, "count", 200, "Number of synthetic outcomes to send (0 = run forever)")
	flag.DurationVar(&interval, "interval", 50*time.Millisecond, "Delay between records")
	flag.Int64Var(&seed, "seed", 1, "Random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(seed))
	client := &http.Client{Timeout: 5 * time.Second}

	sent := 0
	for count == 0 || sent < count {
		rec := synthesize(rng, sent)
		if err := post(client, target+"/api/v1/calibration/outcomes", rec); err != nil {
			log.Printf("send outcome: %v", err)
		} else {
			sent++
			if sent%50 == 0 {
				log.Printf("sent %d outcomes", sent)
			}
		}
		time.Sleep(interval)
	}

	log.Printf("done: %d outcomes sent to %s", sent, target)
}

func synthesize(rng *rand.Rand, n int) outcomeRecord {
	confidence := 0.4 + rng.Float64()*0.6

	action := "manual"
	switch {
	case confidence >= 0.90:
		action = "autonomous"
	case confidence >= 0.70:
		action = "assisted"
	}

	// Success probability trails the stated confidence so the engine sees
	// overconfidence it can correct for.
	successProb := confidence - 0.07
	outcome := "failed"
	if rng.Float64() < successProb {
		outcome = "success"
	} else if rng.Float64() < 0.5 {
		outcome = "rollback"
	}

	// Spread timestamps over the trailing eight weeks for trend analysis.
	age := time.Duration(rng.Intn(8*7*24)) * time.Hour

	return outcomeRecord{
		IssueID:               fmt.Sprintf("mock-issue-%04d", n),
		PredictedConfidence:   confidence,
		PredictedAction:       action,
		ActualOutcome:         outcome,
		ResolutionTimeMinutes: 5 + rng.Float64()*115,
		IssueType:             issueTypes[rng.Intn(len(issueTypes))],
		Timestamp:             time.Now().UTC().Add(-age),
		Severity:              severities[rng.Intn(len(severities))],
		Component:             components[rng.Intn(len(components))],
	}
}

func post(client *http.Client, url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}
