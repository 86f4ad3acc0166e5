package main

import (
	"time"

	"github.com/ripqueue/ripqueue/internal/metrics"
	"github.com/ripqueue/ripqueue/internal/registry"
	"github.com/ripqueue/ripqueue/internal/task"
)

func startMetricsCollector(reg *registry.Registry) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		updateTaskMetrics(reg)
	}
}

func updateTaskMetrics(reg *registry.Registry) {
	counts := make(map[task.Status]int)
	for _, t := range reg.ListAll() {
		counts[t.Status]++
	}

	metrics.UpdateTaskGauges(counts)
}
