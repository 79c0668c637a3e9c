package logging

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
)

// LoggingWriter wraps the response writer of a request, and records the
// status code and the number of bytes written for the access log.
type LoggingWriter struct {
	writer http.ResponseWriter
	code   int
	bytes  int64
}

func NewLoggingWriter(writer http.ResponseWriter) *LoggingWriter {
	return &LoggingWriter{writer: writer}
}

func (lw *LoggingWriter) Write(data []byte) (count int, err error) {
	if lw.code == 0 {
		lw.code = http.StatusOK
	}

	count, err = lw.writer.Write(data)
	lw.bytes += int64(count)
	return
}

func (lw *LoggingWriter) WriteHeader(code int) {
	lw.writer.WriteHeader(code)
	if code == 0 {
		code = http.StatusOK
	}

	if lw.code == 0 {
		lw.code = code
	}
}

func (lw *LoggingWriter) Header() http.Header {
	return lw.writer.Header()
}

func (lw *LoggingWriter) Flush() {
	if f, ok := lw.writer.(http.Flusher); ok {
		f.Flush()
	}
}

func (lw *LoggingWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hij, ok := lw.writer.(http.Hijacker)
	if ok {
		return hij.Hijack()
	}

	return nil, nil, fmt.Errorf("could not hijack connection")
}

// Unwrap is used by http.ResponseController.
func (lw *LoggingWriter) Unwrap() http.ResponseWriter { return lw.writer }

// GetCode returns the response status, or 0 when nothing was written.
func (lw *LoggingWriter) GetCode() int { return lw.code }

// GetBytes returns the number of the written body bytes.
func (lw *LoggingWriter) GetBytes() int64 { return lw.bytes }

// Written tells whether the response header was sent.
func (lw *LoggingWriter) Written() bool { return lw.code != 0 }
