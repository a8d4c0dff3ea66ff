// Package apod wraps the NASA Astronomy Picture of the Day HTTP API.
//
// The client fetches a single day (or today when no date is given) and
// backfills date ranges in bounded windows. Every request passes through a
// token-bucket limiter so long backfills stay inside the API's hourly quota.
// Non-200 responses surface as *StatusError; ErrorMarker maps them onto the
// services error markers that drive step retries.
package apod
