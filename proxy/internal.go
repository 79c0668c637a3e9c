package proxy

import (
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	// InternalPrefix is the path prefix of the internal route of the
	// gateway.
	InternalPrefix = "/__rgw_gateway_internal"

	// NotificationPath receives the route change notifications of the
	// control plane.
	NotificationPath = InternalPrefix + "/notification"

	maxNotificationSize = 64 << 10
)

// Notifier is triggered when the control plane reports changed routes.
type Notifier interface {

	// Trigger requests an asynchronous route update. It must not
	// block.
	Trigger()
}

func isInternal(path string) bool {
	return path == InternalPrefix || strings.HasPrefix(path, InternalPrefix+"/")
}

// serveInternal handles the requests to the internal route. The path is
// normalized the same way as for the route lookup.
func (p *Proxy) serveInternal(w http.ResponseWriter, r *http.Request, path string) int {
	if path != NotificationPath {
		http.NotFound(w, r)
		return http.StatusNotFound
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return http.StatusMethodNotAllowed
	}

	b, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationSize))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return http.StatusBadRequest
	}

	if !gjson.ValidBytes(b) {
		http.Error(w, "invalid notification", http.StatusBadRequest)
		return http.StatusBadRequest
	}

	doc := gjson.ParseBytes(b)
	updated := doc.Get("apiUpdated")
	if !doc.IsObject() || updated.Exists() && !updated.IsBool() {
		http.Error(w, "invalid notification", http.StatusBadRequest)
		return http.StatusBadRequest
	}

	if updated.Bool() {
		log.Info("route update notification received")
		if p.notifier != nil {
			p.notifier.Trigger()
		}
	}

	w.WriteHeader(http.StatusOK)
	return http.StatusOK
}
