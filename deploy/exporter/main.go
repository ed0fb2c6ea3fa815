package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Metric definition
	workerMeta = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_container_info",
			Help: "Worker container metadata as seen by the local Docker daemon",
		},
		[]string{"id", "name", "image", "mode", "node_id", "state"},
	)
)

func init() {
	prometheus.MustRegister(workerMeta)
}

// collect refreshes worker_container_info from the local daemon. Containers
// without an imagegen.mode label are other workloads on the host and are
// skipped.
func collect() {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		log.Printf("Error creating Docker client: %v", err)
		return
	}
	defer cli.Close()

	containers, err := cli.ContainerList(context.Background(), container.ListOptions{All: true})
	if err != nil {
		log.Printf("Error listing containers: %v", err)
		return
	}

	// Reset metric to clear containers that no longer exist
	workerMeta.Reset()

	for _, c := range containers {
		mode := c.Labels["imagegen.mode"]
		if mode == "" {
			continue
		}

		id := c.ID
		if len(id) > 12 {
			id = id[:12]
		}
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		workerMeta.WithLabelValues(
			id,
			name,
			c.Image,
			mode,
			c.Labels["imagegen.node_id"],
			c.State,
		).Set(1)
	}
}

func main() {
	addr := os.Getenv("EXPORTER_ADDR")
	if addr == "" {
		addr = ":8000"
	}

	// Start metric collection goroutine
	go func() {
		for {
			collect()
			time.Sleep(15 * time.Second)
		}
	}()

	// Expose metrics via HTTP
	http.Handle("/metrics", promhttp.Handler())
	fmt.Println("Starting fleet exporter on " + addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
