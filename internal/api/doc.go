// Package api serves the read-only admissions API. Routes, all under /adm_api:
//   - GET /years
//   - GET /{year}/regions
//   - GET /{year}/{region}/schools
//   - GET /{year}/{region}/fullSchool/{school}
//
// Every body is an Envelope. /healthz and /metrics sit outside the prefix.
package api
