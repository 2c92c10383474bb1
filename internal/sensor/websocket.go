package sensor

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Billy-Davies-2/dartsync/internal/logger"
)

// frame is what a board bridge sends: either a reading or a status update.
type frame struct {
	Reading
	Status Status `json:"status,omitempty"`
}

// WebsocketFeed reads board frames from a bridge over a websocket and
// reconnects after failures.
type WebsocketFeed struct {
	URL            string
	Dialer         *websocket.Dialer
	ReconnectDelay time.Duration
}

// NewWebsocketFeed returns a feed for the bridge at url.
func NewWebsocketFeed(url string) *WebsocketFeed {
	return &WebsocketFeed{
		URL:            url,
		Dialer:         websocket.DefaultDialer,
		ReconnectDelay: 2 * time.Second,
	}
}

func (f *WebsocketFeed) Run(ctx context.Context, emit func(Reading), status func(Status)) error {
	for {
		status(StatusConnecting)
		conn, _, err := f.Dialer.DialContext(ctx, f.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("Board bridge dial failed", "url", f.URL, "error", err)
			status(StatusError)
		} else {
			status(StatusConnected)
			f.read(ctx, conn, emit, status)
			if ctx.Err() != nil {
				return nil
			}
			status(StatusDisconnected)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.ReconnectDelay):
		}
	}
}

func (f *WebsocketFeed) read(ctx context.Context, conn *websocket.Conn, emit func(Reading), status func(Status)) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
			conn.Close()
		}
	}()

	for {
		var fr frame
		if err := conn.ReadJSON(&fr); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Board bridge read failed", "error", err)
			}
			return
		}
		if fr.Status != "" {
			status(fr.Status)
			continue
		}
		emit(fr.Reading)
	}
}
