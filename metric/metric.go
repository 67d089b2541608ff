// Package metric holds the Prometheus collectors shared across the
// simulator. Everything is registered on the default registry and served
// by the web router's /metrics endpoint.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksTotal counts completed simulation ticks.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tagsim_ticks_total",
		Help: "Completed simulation ticks",
	})

	// PublishesTotal counts successful deliveries per publisher.
	PublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagsim_publishes_total",
		Help: "Successful publishes by sink",
	}, []string{"publisher"})

	// PublishErrorsTotal counts failed or timed-out deliveries per publisher.
	PublishErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagsim_publish_errors_total",
		Help: "Failed publishes by sink",
	}, []string{"publisher"})

	// PublishDroppedTotal counts updates displaced by a newer one while a
	// sink was busy (latest-wins backpressure).
	PublishDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagsim_publish_dropped_total",
		Help: "Updates dropped because a sink could not keep up",
	}, []string{"publisher"})

	// ActiveAlarms tracks the number of currently active alarm instances.
	ActiveAlarms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tagsim_active_alarms",
		Help: "Currently active alarm instances",
	})

	// NotificationsTotal counts alarm notifications by channel and result.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagsim_notifications_total",
		Help: "Alarm notifications by channel and result",
	}, []string{"channel", "result"})

	// BridgeWritesTotal counts OPC UA bridge writes by remote server and result.
	BridgeWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tagsim_bridge_writes_total",
		Help: "OPC UA bridge writes by server and result",
	}, []string{"server", "result"})
)
