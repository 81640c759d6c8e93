package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	quadgridGridCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grid_count",
		Help: "The number of live grids.",
	})

	quadgridGridCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grid_count_total",
		Help: "The total number of grids created.",
	})

	quadgridGridObjects = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grid_objects",
		Help: "The number of objects stored across all grids.",
	})
)

func instrumentIncreaseGridGauge() {
	quadgridGridCount.Inc()
	quadgridGridCountTotal.Inc()
}

func instrumentDecreaseGridGauge() {
	quadgridGridCount.Dec()
}

func instrumentGridObjects(delta float64) {
	quadgridGridObjects.Add(delta)
}
