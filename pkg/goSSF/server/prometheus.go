package server

import (
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var promLog = log.New(os.Stdout, "PROMTH:      ", log.Ldate|log.Ltime)

type PrometheusHandler struct {
	App                    *SignalsApplication
	EventsIn, EventsOut    prometheus.Counter
	PubPushCnt, PubPollCnt prometheus.GaugeFunc
	RcvPushCnt, RcvPollCnt prometheus.GaugeFunc
}

type streamCollector struct {
	sa           *SignalsApplication
	statusDesc   *prometheus.Desc
	reasonDesc   *prometheus.Desc
	createdDesc  *prometheus.Desc
	modifiedDesc *prometheus.Desc
}

func newStreamCollector(sa *SignalsApplication) *streamCollector {
	return &streamCollector{
		sa: sa,
		statusDesc: prometheus.NewDesc(
			"goSSF_router_stream_status_info",
			"Information about the stream status.",
			[]string{"stream_id", "status"},
			nil,
		),
		reasonDesc: prometheus.NewDesc(
			"goSSF_router_stream_status_reason_info",
			"Information about the stream status reason.",
			[]string{"stream_id", "reason"},
			nil,
		),
		createdDesc: prometheus.NewDesc(
			"goSSF_router_stream_created_at_seconds",
			"Stream creation date in unix seconds.",
			[]string{"stream_id"},
			nil,
		),
		modifiedDesc: prometheus.NewDesc(
			"goSSF_router_stream_modified_at_seconds",
			"Stream last modification date in unix seconds.",
			[]string{"stream_id"},
			nil,
		),
	}
}

func (c *streamCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.statusDesc
	ch <- c.reasonDesc
	ch <- c.createdDesc
	ch <- c.modifiedDesc
}

func (c *streamCollector) Collect(ch chan<- prometheus.Metric) {
	states := c.sa.Provider.GetStateMap()
	for _, state := range states {
		streamID := state.StreamConfiguration.Id
		ch <- prometheus.MustNewConstMetric(c.statusDesc, prometheus.GaugeValue, 1, streamID, state.Status)
		ch <- prometheus.MustNewConstMetric(c.reasonDesc, prometheus.GaugeValue, 1, streamID, state.StatusReason)
		ch <- prometheus.MustNewConstMetric(c.createdDesc, prometheus.GaugeValue, float64(state.CreatedAt.Unix()), streamID)
		ch <- prometheus.MustNewConstMetric(c.modifiedDesc, prometheus.GaugeValue, float64(state.ModifiedAt.Unix()), streamID)
	}
}

var (
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "goSSF_http_duration_seconds",
		Help: "Duration of HTTP requests.",
	}, []string{"path"})
)

func PrometheusHttpMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := mux.CurrentRoute(r)
		path := r.URL.Path
		if route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}
		timer := prometheus.NewTimer(httpDuration.WithLabelValues(path))
		next.ServeHTTP(w, r)
		timer.ObserveDuration()
	})
}

func (sa *SignalsApplication) InitializePrometheus() {
	prometheusHandler := PrometheusHandler{
		App: sa,
		EventsIn: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "goSSF",
				Subsystem: "router",
				Name:      "events_in_total",
				Help:      "Events received",
			}),
		EventsOut: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "goSSF",
				Subsystem: "router",
				Name:      "events_out_total",
				Help:      "Events delivered",
			}),
		PubPollCnt: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "goSSF",
				Subsystem: "router",
				Name:      "stream_pub_polling_cnt",
				Help:      "Number of SET polling publisher streams",
			},
			func() float64 {
				return sa.EventRouter.GetPollStreamCnt()
			}),
		PubPushCnt: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "goSSF",
				Subsystem: "router",
				Name:      "stream_pub_push_cnt",
				Help:      "Number of SET push publisher streams",
			},
			func() float64 {
				return sa.EventRouter.GetPushStreamCnt()
			}),
		RcvPollCnt: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "goSSF",
				Subsystem: "router",
				Name:      "stream_rcv_poll_cnt",
				Help:      "Number of SET polling receivers",
			},
			func() float64 {
				return sa.GetPollReceiverCnt()
			}),
		RcvPushCnt: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: "goSSF",
				Subsystem: "router",
				Name:      "stream_rcv_push_cnt",
				Help:      "Number of SET push receivers",
			},
			func() float64 {
				return sa.GetPushReceiverCnt()
			}),
	}

	sa.EventRouter.SetEventCounter(prometheusHandler.EventsIn, prometheusHandler.EventsOut)

	registerCollector(prometheusHandler.EventsIn)
	registerCollector(prometheusHandler.EventsOut)
	registerCollector(prometheusHandler.RcvPollCnt)
	registerCollector(prometheusHandler.RcvPushCnt)
	registerCollector(prometheusHandler.PubPollCnt)
	registerCollector(prometheusHandler.PubPushCnt)
	registerCollector(newStreamCollector(sa))

	sa.Stats = &prometheusHandler
}

func registerCollector(collector prometheus.Collector) {
	err := prometheus.Register(collector)
	if err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			// Already registered, fine in tests
			return
		}
		promLog.Println("WARNING: instrumentation error:" + err.Error())
	}
}
