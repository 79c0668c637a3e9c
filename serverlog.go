package rgw

import (
	stdlog "log"
	"strings"

	log "github.com/sirupsen/logrus"
)

type serverErrorLogWriter struct{}

// the http server logs TLS handshake and connection errors here
func (serverErrorLogWriter) Write(p []byte) (int, error) {
	log.Error(strings.TrimSpace(string(p)))
	return len(p), nil
}

func newServerErrorLog() *stdlog.Logger {
	return stdlog.New(serverErrorLogWriter{}, "", 0)
}
