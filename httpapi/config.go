package httpapi

// Config defines HTTP API settings.
type Config struct {
	Addr string
	// BasePath mounts the API below a path prefix, e.g. behind a reverse proxy.
	BasePath string
	// SubmitRatePerMinute caps submissions per client IP; zero disables the limit.
	SubmitRatePerMinute int
}
