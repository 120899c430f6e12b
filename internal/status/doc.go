// Package status collapses the status of a generation job and of its validation job
// into the small status vocabulary exposed to clients.
//
// The upload job and the validation job are independent state machines. MapStatus maps the
// upload status first and consults the validation job only when the upload finished.
package status
