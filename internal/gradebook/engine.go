package gradebook

import (
	"context"
	"io"
	"time"

	"github.com/labstack/gommon/log"
)

type Clock func() time.Time

// Engine keeps students' result slots in step with the roster and the
// standards catalog, and grades recorded results.
type Engine struct {
	Store  Store
	Now    Clock
	SiteID string

	log *log.Logger
}

type Option func(*Engine)

func WithClock(c Clock) Option { return func(e *Engine) { e.Now = c } }

func WithSiteID(id string) Option { return func(e *Engine) { e.SiteID = id } }

func WithLogger(l *log.Logger) Option { return func(e *Engine) { e.log = l } }

// WithLogOutput redirects the engine's default logger; apply after WithLogger.
func WithLogOutput(w io.Writer) Option { return func(e *Engine) { e.log.SetOutput(w) } }

func WithLogLevel(lvl log.Lvl) Option { return func(e *Engine) { e.log.SetLevel(lvl) } }

func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		Store:  store,
		Now:    time.Now,
		SiteID: "local",
		log:    log.New("gradebook"),
	}
	for _, o := range opts {
		o(e)
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	return e
}

// Student returns the engine view of a roster entry.
func (e *Engine) Student(ctx context.Context, id int64) (Student, error) {
	var st Student
	err := e.Store.InTx(ctx, func(tx Tx) error {
		var err error
		st, err = tx.GetStudent(ctx, id)
		return err
	})
	return st, err
}
