package share

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the share subsystem's Prometheus collectors.
type Metrics struct {
	PeersConnected        prometheus.Gauge
	SessionsCreated       prometheus.Counter
	FilesAnnounced        prometheus.Counter
	FilesExpired          prometheus.Counter
	FilesRemoved          prometheus.Counter
	BlobDeleteFailures    prometheus.Counter
	RoomStoreWriteErrors  prometheus.Counter
	BroadcastDroppedPeers prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sharedrop", Name: "peers_connected",
			Help: "Number of peers currently joined to a room.",
		}),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharedrop", Name: "sessions_created_total",
			Help: "Sessions minted.",
		}),
		FilesAnnounced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharedrop", Name: "files_announced_total",
			Help: "Files announced to a room.",
		}),
		FilesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharedrop", Name: "files_expired_total",
			Help: "Files removed by their expiry timer.",
		}),
		FilesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharedrop", Name: "files_removed_total",
			Help: "Files removed before expiry by an admin.",
		}),
		BlobDeleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharedrop", Name: "blob_delete_failures_total",
			Help: "Blob deletions that failed; the record was removed anyway.",
		}),
		RoomStoreWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharedrop", Name: "room_store_write_errors_total",
			Help: "Failed writes to the room state store.",
		}),
		BroadcastDroppedPeers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sharedrop", Name: "broadcast_dropped_peers_total",
			Help: "Peers dropped because their outbox was full or closed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.PeersConnected,
			m.SessionsCreated,
			m.FilesAnnounced,
			m.FilesExpired,
			m.FilesRemoved,
			m.BlobDeleteFailures,
			m.RoomStoreWriteErrors,
			m.BroadcastDroppedPeers,
		)
	}
	return m
}
