package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CommentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pillcity_comments_created_total",
		Help: "Comments attached to posts, nested ones included.",
	})

	NotificationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pillcity_notifications_dispatched_total",
		Help: "Notification records persisted, by action.",
	}, []string{"action"})
)
