package services

import "github.com/prometheus/client_golang/prometheus"

// Domain counters. Label values are fixed sets to keep cardinality bounded.
var (
	checkoutTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_checkout_sessions_total",
			Help: "Checkout attempts by outcome (created, already_completed, error).",
		},
		[]string{"outcome"},
	)

	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_direct_submissions_total",
			Help: "Direct submissions by outcome (created, subscription_required, invalid, error).",
		},
		[]string{"outcome"},
	)

	paymentsVerifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_payments_verified_total",
			Help: "Verified checkout payments by source (redirect, webhook).",
		},
		[]string{"source"},
	)

	reconciledRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_reconciled_rows_total",
			Help: "Rows linked to a user by identity reconciliation, by strategy.",
		},
		[]string{"strategy"},
	)

	emailChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_email_checks_total",
			Help: "Email existence checks by result (exists, available, own_email).",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(checkoutTotal, submissionsTotal, paymentsVerifiedTotal, reconciledRowsTotal, emailChecksTotal)
}
