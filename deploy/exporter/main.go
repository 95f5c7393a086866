// Command exporter is a sidecar that exposes helper-job progress as
// Prometheus metrics. It polls the progress files the embedding helper
// writes under the logs directory, so operators can graph long builds
// without touching the admin API.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobProgressDone = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "helper_job_progress_done",
			Help: "Items the helper has processed so far",
		},
		[]string{"job_id", "phase"},
	)
	jobProgressTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "helper_job_progress_total",
			Help: "Total items the helper plans to process",
		},
		[]string{"job_id", "phase"},
	)
)

func init() {
	prometheus.MustRegister(jobProgressDone, jobProgressTotal)
}

// progressDoc mirrors the helper's progress file. Unknown fields are
// ignored so helpers can extend the document freely.
type progressDoc struct {
	Phase string  `json:"phase"`
	Done  float64 `json:"done"`
	Total float64 `json:"total"`
}

func collectMetrics(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("Error reading logs dir: %v", err)
		return
	}

	// Reset so finished-and-swept jobs drop out of the scrape.
	jobProgressDone.Reset()
	jobProgressTotal.Reset()

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".progress.json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var doc progressDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			continue
		}
		jobID := strings.TrimSuffix(name, ".progress.json")
		jobProgressDone.WithLabelValues(jobID, doc.Phase).Set(doc.Done)
		jobProgressTotal.WithLabelValues(jobID, doc.Phase).Set(doc.Total)
	}
}

func main() {
	dir := flag.String("logs-dir", "scripts/logs", "directory holding *.progress.json files")
	addr := flag.String("addr", ":8000", "listen address")
	interval := flag.Duration("interval", 15*time.Second, "poll interval")
	flag.Parse()

	go func() {
		for {
			collectMetrics(*dir)
			time.Sleep(*interval)
		}
	}()

	http.Handle("/metrics", promhttp.Handler())
	fmt.Printf("Starting job progress exporter on %s\n", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}
