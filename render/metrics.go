package render

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var renderTicks = promauto.NewCounter(prometheus.CounterOpts{
	Name: "mocap_render_ticks_total",
	Help: "Render loop iterations.",
})
