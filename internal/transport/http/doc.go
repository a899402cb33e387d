// Package http exposes the reduction service over a chi router:
//
//	GET  /api/health
//	GET  /api/v1/reductions
//	POST /api/v1/reductions
//	GET  /api/v1/reductions/{id}
//	GET  /api/v1/reductions/{id}/polar.csv
//	GET  /api/v1/reductions/{id}/settling?column=cl&alpha=4&re=1e6
//	GET  /metrics
//
// Errors are rendered as RFC 7807 problem details.
package http
