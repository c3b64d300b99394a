package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OnlineConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_online_conns",
		Help: "Current live websocket connections.",
	})

	MessagesPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_persisted_total",
		Help: "Total chat messages durably saved.",
	})
	MessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_delivered_total",
		Help: "Total chat messages relayed to at least one live session.",
	})
	MessagesOffline = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_offline_total",
		Help: "Total chat messages left at status=sent (receiver offline).",
	})

	PresenceEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_presence_events_total",
		Help: "Total presence transitions broadcast.",
	})

	SignalsRelayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_signals_relayed_total",
		Help: "Total call-signaling packets forwarded.",
	})
	SignalsPeerOffline = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_signals_peer_offline_total",
		Help: "Total signaling attempts rejected because the peer was offline.",
	})

	AuthFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_auth_failures_total",
		Help: "Total rejected connection credentials.",
	})
)

func Register() {
	prometheus.MustRegister(
		OnlineConns,
		MessagesPersisted, MessagesDelivered, MessagesOffline,
		PresenceEvents,
		SignalsRelayed, SignalsPeerOffline,
		AuthFailures,
	)
}
