package purldb

// ReconcileResult is the outcome of reconciling one observation.
//
// Err carries soft rejections (for example a missing download URL): the
// observation was refused, nothing was written, and no Go error was raised.
// Hard failures, such as integrity conflicts and storage errors, surface as
// errors from the reconcile call instead.
type ReconcileResult struct {
	Package *Package `json:"package"`
	Created bool     `json:"created"`
	Merged  bool     `json:"merged"`
	Err     string   `json:"error,omitempty"`
}
