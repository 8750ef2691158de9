package reports

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/verisched/verisched/common/stats"
	"github.com/verisched/verisched/scheduler/jobserver"
)

const (
	DefaultSendTimeout   = 10 * time.Second
	DefaultMaxPerFlush   = 100
	DefaultMaxRejections = 3
)

type Config struct {
	// SendTimeout bounds one submission, retries included.
	SendTimeout time.Duration
	// MaxPerFlush bounds the submissions made by one Flush.
	MaxPerFlush int
	// MaxAttempts drops a report after that many failed sends. Zero keeps
	// retrying forever.
	MaxAttempts int
	// MaxRejections drops a report the server rejected as invalid after
	// that many attempts, whatever MaxAttempts says.
	MaxRejections int
}

// Outbox sends stored reports to the job server in order. It is used from
// the scheduler loop goroutine only.
type Outbox struct {
	store    Store
	js       jobserver.JobServer
	config   Config
	attempts map[uint64]int
	stat     stats.StatsReceiver
}

func NewOutbox(store Store, js jobserver.JobServer, config Config, stat stats.StatsReceiver) *Outbox {
	if config.SendTimeout <= 0 {
		config.SendTimeout = DefaultSendTimeout
	}
	if config.MaxPerFlush <= 0 {
		config.MaxPerFlush = DefaultMaxPerFlush
	}
	if config.MaxRejections <= 0 {
		config.MaxRejections = DefaultMaxRejections
	}
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	return &Outbox{
		store:    store,
		js:       js,
		config:   config,
		attempts: make(map[uint64]int),
		stat:     stat,
	}
}

// Add stores r to be sent by a later Flush.
func (o *Outbox) Add(r Report) error {
	r, err := o.store.Append(r)
	if err != nil {
		return err
	}
	log.WithFields(
		log.Fields{
			"report": r.String(),
		}).Debug("Queued report")
	return nil
}

// Flush sends pending reports in order and returns the terminal ones that
// were delivered. A failed send blocks only its own item: that report and
// the later reports of the same item wait for the next Flush, which keeps
// the reports of each item in order. Reports for items the server no longer
// knows are dropped, and so are reports that keep being rejected.
func (o *Outbox) Flush(ctx context.Context) ([]Report, error) {
	pending, err := o.store.Pending()
	if err != nil {
		return nil, err
	}
	var delivered []Report
	blocked := make(map[string]bool)
	sent := 0
	for _, r := range pending {
		if sent >= o.config.MaxPerFlush {
			break
		}
		if blocked[r.Key()] {
			continue
		}
		sent++
		err := o.send(ctx, r)
		switch {
		case err == nil:
			o.stat.Counter(stats.SchedReportsSentCounter).Inc(1)
		case jobserver.IsNotFound(err):
			log.WithFields(
				log.Fields{
					"report": r.String(),
					"err":    err,
				}).Warn("Server does not know the item, dropping report")
		case o.givesUp(r, err):
			o.stat.Counter(stats.SchedReportsDroppedCounter).Inc(1)
			log.WithFields(
				log.Fields{
					"report":   r.String(),
					"attempts": o.attempts[r.Seq],
					"err":      err,
				}).Error("Giving up on report")
		default:
			o.stat.Counter(stats.SchedReportFailuresCounter).Inc(1)
			log.WithFields(
				log.Fields{
					"report":   r.String(),
					"attempts": o.attempts[r.Seq],
					"err":      err,
				}).Warn("Failed to send report, will retry")
			blocked[r.Key()] = true
			continue
		}
		if err := o.store.Ack(r.Seq); err != nil {
			return delivered, err
		}
		delete(o.attempts, r.Seq)
		if r.Terminal {
			delivered = append(delivered, r)
		}
	}
	return delivered, nil
}

func (o *Outbox) givesUp(r Report, err error) bool {
	n := o.attempts[r.Seq]
	if jobserver.IsRejected(err) && n >= o.config.MaxRejections {
		return true
	}
	return o.config.MaxAttempts > 0 && n >= o.config.MaxAttempts
}

func (o *Outbox) send(ctx context.Context, r Report) error {
	o.attempts[r.Seq]++
	ctx, cancel := context.WithTimeout(ctx, o.config.SendTimeout)
	defer cancel()
	return Send(ctx, o.js, r)
}

// Len is the number of unsent reports.
func (o *Outbox) Len() int {
	pending, err := o.store.Pending()
	if err != nil {
		return 0
	}
	return len(pending)
}

func (o *Outbox) Close() error {
	return o.store.Close()
}
