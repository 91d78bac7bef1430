package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vigil-obs/vigil/internal/build"
	"github.com/vigil-obs/vigil/internal/vigilcli"
)

func init() {
	prometheus.MustRegister(build.NewCollector("vigil"))
}

func main() {
	vigilcli.Run()
}
