// Package events publishes build reports on NATS so editors and bots can
// follow builds.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "modforge.build"

var subjectUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Conn is the part of *nats.Conn used for publishing.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// BuildReport is the message format of a finished build.
type BuildReport struct {
	Mod        string    `json:"mod"`
	Folder     string    `json:"folder,omitempty"`
	Files      []string  `json:"files"`
	Entities   int       `json:"entities"`
	Notices    int       `json:"notices"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Publisher sends build reports. A nil *Publisher or one without a
// connection drops reports.
type Publisher struct {
	conn   Conn
	prefix string
	logger *slog.Logger
}

// NewPublisher wraps an established connection.
func NewPublisher(conn Conn, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, prefix: prefix, logger: logger}
}

// Connect dials url and returns a publisher together with a close function.
// An empty url yields a publisher that drops reports.
func Connect(url, prefix string, logger *slog.Logger) (*Publisher, func(), error) {
	if url == "" {
		return NewPublisher(nil, prefix, logger), func() {}, nil
	}
	nc, err := nats.Connect(url, nats.Name("modforge"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}
	return NewPublisher(nc, prefix, logger), nc.Close, nil
}

// Subject returns the subject reports for mod are sent to.
func (p *Publisher) Subject(mod string) string {
	return p.prefix + "." + subjectUnsafe.ReplaceAllString(mod, "_")
}

// PublishBuild sends the report for one build and waits for the server to
// receive it.
func (p *Publisher) PublishBuild(ctx context.Context, report BuildReport) error {
	if p == nil || p.conn == nil {
		return nil
	}
	if report.FinishedAt.IsZero() {
		report.FinishedAt = time.Now().UTC()
	}
	if report.Files == nil {
		report.Files = []string{}
	}

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal build report: %w", err)
	}
	subject := p.Subject(report.Mod)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish build report: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush build report: %w", err)
	}
	p.logger.Debug("Published build report", "subject", subject)
	return nil
}
