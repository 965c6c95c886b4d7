package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercuria_session_refresh_total",
			Help: "Backend refresh exchanges by outcome",
		},
		[]string{"outcome"},
	)

	authRetryTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mercuria_dispatch_auth_retry_total",
			Help: "Requests replayed after a credential refresh",
		},
	)

	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercuria_dispatch_total",
			Help: "Dispatched backend requests by result class",
		},
		[]string{"method", "class"},
	)

	submissionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mercuria_form_submission_total",
			Help: "Form submissions by form and outcome",
		},
		[]string{"form", "outcome"},
	)
)
