package core

// Logger is any structured logger. `args` may hold errors, extra data (map[string]interface{})
// and the user.User the log line concerns.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
