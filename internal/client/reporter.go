package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hirecraft/assess-go/internal/dto"
	"github.com/hirecraft/assess-go/internal/session"
)

const (
	proctorHandshakeTimeout = 5 * time.Second
	proctorWriteTimeout     = 5 * time.Second
)

// ProctorReporter streams violations to the server's proctor websocket as
// they occur. Delivery is best effort: a broken connection is redialed on
// the next report, and a report that still cannot be delivered returns an
// error without affecting the session's local violation log.
type ProctorReporter struct {
	mu     sync.Mutex
	url    string
	token  string
	dialer *websocket.Dialer
	conn   *websocket.Conn
	closed bool
	logger zerolog.Logger
}

// NewProctorReporter builds a reporter for the given question's proctor
// feed. The connection is dialed lazily on the first report.
func NewProctorReporter(baseURL string, questionID uint, candidateToken string, logger zerolog.Logger) (*ProctorReporter, error) {
	wsURL, err := proctorURL(baseURL, questionID)
	if err != nil {
		return nil, err
	}

	return &ProctorReporter{
		url:    wsURL,
		token:  candidateToken,
		dialer: &websocket.Dialer{HandshakeTimeout: proctorHandshakeTimeout},
		logger: logger.With().Str("component", "proctor_reporter").Logger(),
	}, nil
}

func proctorURL(baseURL string, questionID uint) (string, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = fmt.Sprintf("%s/api/questions/%d/proctor", parsed.Path, questionID)
	return parsed.String(), nil
}

// Report delivers one violation to the proctor feed.
func (r *ProctorReporter) Report(v session.Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("proctor reporter is closed")
	}

	message := dto.ProctorEventMessage{
		Kind:       string(v.Kind),
		OccurredAt: v.OccurredAt,
	}

	if r.conn == nil {
		if err := r.dialLocked(); err != nil {
			return err
		}
	}

	_ = r.conn.SetWriteDeadline(time.Now().Add(proctorWriteTimeout))
	if err := r.conn.WriteJSON(message); err != nil {
		// Drop the broken connection and retry once on a fresh dial.
		r.dropLocked()
		if err := r.dialLocked(); err != nil {
			return err
		}
		_ = r.conn.SetWriteDeadline(time.Now().Add(proctorWriteTimeout))
		if err := r.conn.WriteJSON(message); err != nil {
			r.dropLocked()
			return fmt.Errorf("write proctor event: %w", err)
		}
	}
	return nil
}

func (r *ProctorReporter) dialLocked() error {
	header := http.Header{CandidateTokenHeader: {r.token}}
	conn, resp, err := r.dialer.Dial(r.url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial proctor feed: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial proctor feed: %w", err)
	}
	r.conn = conn
	r.logger.Debug().Str("url", r.url).Msg("proctor feed connected")
	return nil
}

func (r *ProctorReporter) dropLocked() {
	if r.conn != nil {
		_ = r.conn.Close()
		r.conn = nil
	}
}

// Close shuts the feed down. Further reports are rejected.
func (r *ProctorReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.conn != nil {
		deadline := time.Now().Add(proctorWriteTimeout)
		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err := r.conn.Close()
		r.conn = nil
		return err
	}
	return nil
}
