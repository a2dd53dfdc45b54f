package flow

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"paygate/cardauth/pkg/cres"
)

// Poller repeatedly fetches pending challenge data for one
// ChallengeSession until a challenge response value appears or the
// session is cancelled. At most one fetch is outstanding at any
// instant, and at most one polling loop runs per session.
type Poller struct {
	client   cres.Client
	interval time.Duration

	mu       sync.Mutex
	stopCh   chan struct{}
	inFlight bool
}

func NewPoller(client cres.Client, interval time.Duration) *Poller {
	return &Poller{
		client:   client,
		interval: interval,
	}
}

// Start arms the polling loop. It is a no-op when a loop is already
// running. onFound receives the challenge response value exactly once;
// onError receives a fetch failure, after which the loop has already
// stopped (fail closed).
func (p *Poller) Start(session ChallengeSession, onFound func(cresValue string), onError func(err error)) {
	p.mu.Lock()
	if p.stopCh != nil {
		p.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	p.stopCh = stopCh
	p.mu.Unlock()

	clog := log.WithFields(log.Fields{
		"operation": "Challenge Poll",
		"reference": session.ReferenceId,
	})
	clog.WithField("interval", p.interval).Info("polling started")

	go p.loop(stopCh, clog, session, onFound, onError)
}

// Stop is idempotent: it clears the timer loop if one is armed and
// resets the in-flight flag. Safe to call any number of times, from
// any of the exit paths, including when never started.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	p.inFlight = false
}

// Running reports whether a polling loop is armed.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopCh != nil
}

func (p *Poller) loop(stopCh chan struct{}, clog *log.Entry, session ChallengeSession, onFound func(string), onError func(error)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			clog.Info("polling stopped")
			return
		case <-ticker.C:
			if p.tick(clog, session, onFound, onError) {
				return
			}
		}
	}
}

// tick performs one fetch. It reports true when the loop is done,
// either because a value was found or because the fetch failed.
func (p *Poller) tick(clog *log.Entry, session ChallengeSession, onFound func(string), onError func(error)) (done bool) {
	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		clog.Debug("previous fetch still outstanding, skipping tick")
		return false
	}
	p.inFlight = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	ctx := context.Background()
	res, err := p.client.GetData(ctx, session.AccessToken, session.ReferenceId)
	if err != nil {
		clog.WithError(err).Error("challenge fetch failed, stopping poll")
		p.Stop()
		onError(err)
		return true
	}
	if res.Data.Cres == "" {
		clog.Debug("challenge not completed yet")
		return false
	}

	// stop before consuming so a later tick can never re-deliver
	p.Stop()
	if _, cErr := p.client.Confirm(ctx, session.AccessToken, session.ReferenceId); cErr != nil {
		// confirm's outcome is informational; the value is delivered
		// regardless
		clog.WithError(cErr).Warn("challenge confirm failed")
	}
	clog.Info("challenge response value received")
	onFound(res.Data.Cres)
	return true
}
