package stats

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "tagcanon"

var (
	Gather = prometheus.NewRegistry()

	DictionaryBuildCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "dictionary",
			Name:      "builds_total",
			Help:      "Counter of dictionary compiles by outcome.",
		}, []string{"result"})

	DictionaryGeneration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "dictionary",
			Name:      "generation",
			Help:      "Generation number of the compiled index in use.",
		})

	DictionaryRules = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "dictionary",
			Name:      "rules",
			Help:      "Number of compiled rules by kind.",
		}, []string{"kind"})

	NormalizeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "normalize_total",
			Help:      "Counter of normalize calls by entry point.",
		}, []string{"op"})

	InvalidRawTagCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "engine",
			Name:      "invalid_raw_tags_total",
			Help:      "Counter of raw tag values skipped because they were not strings.",
		})

	RetagCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "retag",
			Name:      "documents_total",
			Help:      "Counter of documents visited by the retag job by outcome.",
		}, []string{"result"})

	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Counter of http requests.",
		}, []string{"method", "code"})
)

func init() {
	Gather.MustRegister(DictionaryBuildCounter)
	Gather.MustRegister(DictionaryGeneration)
	Gather.MustRegister(DictionaryRules)
	Gather.MustRegister(NormalizeCounter)
	Gather.MustRegister(InvalidRawTagCounter)
	Gather.MustRegister(RetagCounter)
	Gather.MustRegister(HTTPRequestCounter)
	Gather.MustRegister(collectors.NewGoCollector())
	Gather.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gather, promhttp.HandlerOpts{})
}
