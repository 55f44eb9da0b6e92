// Package ingest maintains a single supervised XMPP session against
// nwws-oi.weather.gov: connect with College-Park/Boulder site fallback,
// join the NWWS-OI multi-user chat, recover from MUC error presences,
// answer software-version IQs, detect sequence gaps, and fan surviving
// stanzas out into the Alert Builder and Store.
package ingest

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/nwws-alert/ingest/internal/builder"
	"github.com/nwws-alert/ingest/internal/store"
	"github.com/rs/zerolog"
	"gosrc.io/xmpp"
	"gosrc.io/xmpp/stanza"
)

// Version is reported in the XMPP software-version IQ response.
var Version = "v0.0.0-dev"

const (
	nwwsBoulder       = "nwws-oi-bldr.weather.gov"
	nwwsCollegePark   = "nwws-oi-cprk.weather.gov"
	nwwsServerPort    = "5222"
	nwwsDomain        = "nwws-oi.weather.gov"
	mucReconnectDelay = 5 * time.Second
	connectTimeout    = 3 * time.Second
)

// warningBannerPrefix marks the groupchat banner NWWS-OI sends on join,
// which carries no product and must be ignored.
const warningBannerPrefix = "**WARNING**"

// State is one of the connection-lifecycle states.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateJoined       State = "joined"
	StateBackingOff   State = "backing-off"
	StateFatal        State = "fatal"
)

// Config carries the NWWS-OI credentials and reconnect tuning.
type Config struct {
	Username              string
	Password              string
	Resource              string
	MaxReconnectAttempts  int
	InitialReconnectDelay time.Duration
}

// Supervisor owns the XMPP session lifecycle and hands surviving stanzas to
// the Builder, then applies the result to the Store.
type Supervisor struct {
	cfg     Config
	builder *builder.Builder
	store   *store.Store
	log     zerolog.Logger

	mucJID *stanza.Jid

	seqMu   sync.Mutex
	lastSeq map[string]int

	stateMu sync.RWMutex
	state   State

	runCtx context.Context
}

// New constructs a Supervisor. Resource defaults to the standard client
// nickname when empty.
func New(cfg Config, b *builder.Builder, st *store.Store, log zerolog.Logger) *Supervisor {
	if cfg.Resource == "" {
		cfg.Resource = "SparkAlerts NWWS Ingest Client"
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}
	if cfg.InitialReconnectDelay <= 0 {
		cfg.InitialReconnectDelay = 2 * time.Second
	}
	return &Supervisor{
		cfg:     cfg,
		builder: b,
		store:   st,
		log:     log,
		lastSeq: make(map[string]int),
		state:   StateDisconnected,
	}
}

// State reports the current connection-lifecycle state.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Run drives the connect -> join -> backoff -> reconnect lifecycle until ctx
// is cancelled or a fatal condition is reached (not-authorized at start, or
// too many consecutive failures). A fatal return is the caller's cue to
// exit(1).
func (s *Supervisor) Run(ctx context.Context) error {
	s.runCtx = ctx
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(StateConnecting)
		client, errCh, err := s.connect()
		if err != nil {
			if isAuthError(err) {
				s.setState(StateFatal)
				return fmt.Errorf("NWWS-IO authentication refused: %w", err)
			}
			attempt++
			if attempt > s.cfg.MaxReconnectAttempts {
				s.setState(StateFatal)
				return fmt.Errorf("exceeded %d reconnect attempts: %w", s.cfg.MaxReconnectAttempts, err)
			}
			s.setState(StateBackingOff)
			delay := backoffDelay(s.cfg.InitialReconnectDelay, attempt)
			s.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("NWWS-IO connect failed, backing off")
			if !sleepOrDone(ctx, delay) {
				return nil
			}
			continue
		}

		attempt = 0 // reset on every successful join
		s.setState(StateJoined)
		s.log.Info().Str("jid", s.mucJID.Full()).Msg("joined NWWS-IO multi-user chat")

		select {
		case <-ctx.Done():
			_ = client.Disconnect()
			return nil
		case err := <-errCh:
			_ = client.Disconnect()
			if isAuthError(err) {
				s.setState(StateFatal)
				return fmt.Errorf("NWWS-IO authentication refused: %w", err)
			}
			s.setState(StateBackingOff)
			if !isNetworkError(err) {
				s.log.Warn().Err(err).Msg("unrecognized XMPP session error, attempting reconnect anyway")
			}
			attempt++
			if attempt > s.cfg.MaxReconnectAttempts {
				s.setState(StateFatal)
				return fmt.Errorf("exceeded %d reconnect attempts: %w", s.cfg.MaxReconnectAttempts, err)
			}
			delay := backoffDelay(s.cfg.InitialReconnectDelay, attempt)
			s.log.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("NWWS-IO session ended, backing off")
			if !sleepOrDone(ctx, delay) {
				return nil
			}
		}
	}
}

// backoffDelay computes initial * 2^(attempt-1) + jitter in [0,1000ms).
func backoffDelay(initial time.Duration, attempt int) time.Duration {
	backoff := initial * time.Duration(1<<uint(attempt-1))
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	return backoff + jitter
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// connect resolves a live NWWS-IO site, authenticates, and joins the MUC.
// errCh receives exactly one error when the session later disconnects.
func (s *Supervisor) connect() (*xmpp.Client, <-chan error, error) {
	instanceID := generateInstanceID()
	s.mucJID = &stanza.Jid{
		Node:     "nwws",
		Domain:   "conference.nwws-oi.weather.gov",
		Resource: fmt.Sprintf("%s-%s", s.cfg.Resource, instanceID),
	}

	errCh := make(chan error, 1)
	reportErr := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	router := xmpp.NewRouter()
	router.HandleFunc("message", func(sender xmpp.Sender, p stanza.Packet) {
		s.handleMessage(p)
	})
	router.HandleFunc("presence", func(sender xmpp.Sender, p stanza.Packet) {
		s.handlePresence(sender, p)
	})
	router.NewRoute().IQNamespaces("jabber:iq:version").HandlerFunc(s.handleVersion)

	jid := fmt.Sprintf("%s@%s/%s-%s", s.cfg.Username, nwwsDomain, "nwws", instanceID)
	cfg := xmpp.Config{
		Jid:            jid,
		Credential:     xmpp.Password(s.cfg.Password),
		Insecure:       false,
		ConnectTimeout: int(connectTimeout.Seconds()),
		TransportConfiguration: xmpp.TransportConfiguration{
			Address: nwwsCollegePark + ":" + nwwsServerPort,
			Domain:  nwwsDomain,
		},
	}

	client, err := xmpp.NewClient(&cfg, router, reportErr)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(); err != nil {
		s.log.Warn().Err(err).Str("site", nwwsCollegePark).Msg("primary NWWS-IO site unreachable, trying backup")
		_ = client.Disconnect()

		cfg.TransportConfiguration = xmpp.TransportConfiguration{
			Address: nwwsBoulder + ":" + nwwsServerPort,
			Domain:  nwwsDomain,
		}
		client, err = xmpp.NewClient(&cfg, router, reportErr)
		if err != nil {
			return nil, nil, err
		}
		if err := client.Connect(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to all NWWS-IO sites: %w", err)
		}
	}

	if err := s.joinMUC(client); err != nil {
		_ = client.Disconnect()
		return nil, nil, fmt.Errorf("failed to join multi-user chat: %w", err)
	}

	return client, errCh, nil
}

func (s *Supervisor) joinMUC(sender xmpp.Sender) error {
	return sender.Send(stanza.Presence{
		Attrs: stanza.Attrs{To: s.mucJID.Full()},
		Extensions: []stanza.PresExtension{
			stanza.MucPresence{History: stanza.History{MaxStanzas: stanza.NewNullableInt(0)}},
		},
	})
}

// handlePresence retries the MUC join after an error presence from the room.
func (s *Supervisor) handlePresence(sender xmpp.Sender, p stanza.Packet) {
	presence, ok := p.(*stanza.Presence)
	if !ok || s.mucJID == nil {
		return
	}
	if presence.Type != stanza.PresenceTypeError || !strings.HasPrefix(presence.From, s.mucJID.Bare()) {
		return
	}
	s.log.Warn().Str("from", presence.From).Msg("received error presence from MUC, will retry join")
	go func() {
		time.Sleep(mucReconnectDelay)
		if err := s.joinMUC(sender); err != nil {
			s.log.Error().Err(err).Msg("failed to rejoin MUC")
		}
	}()
}

func (s *Supervisor) handleVersion(sender xmpp.Sender, p stanza.Packet) {
	iq, ok := p.(*stanza.IQ)
	if !ok {
		return
	}
	resp, err := stanza.NewIQ(stanza.Attrs{Type: "result", From: iq.To, To: iq.From, Id: iq.Id, Lang: "en"})
	if err != nil {
		return
	}
	resp.Version().SetInfo("nwws-alert-ingest", Version, fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH))
	_ = sender.Send(resp)
}

// handleMessage is the stanza filter and fan-out point: ignore
// non-message/banner/bodyless stanzas, extract the product text and
// office/product hints, hand off to the Builder, and apply the Result to
// the Store in stanza arrival order.
func (s *Supervisor) handleMessage(p stanza.Packet) {
	msg, ok := p.(stanza.Message)
	if !ok {
		return
	}

	var ext stanzaExtension
	if ok := msg.Get(&ext); !ok {
		return
	}
	ext.AwipsID = strings.TrimSpace(ext.AwipsID)

	if strings.HasPrefix(strings.TrimSpace(ext.Text), warningBannerPrefix) {
		return
	}
	if strings.TrimSpace(ext.Text) == "" {
		return
	}

	if proc, seq, ok := ext.sequenceID(); ok {
		s.checkSequenceGap(proc, seq)
	}

	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	result := s.builder.Build(ctx, ext.Text, ext.Cccc, ext.Ttaaii)
	switch result.Action {
	case builder.ActionUpsert:
		s.store.Upsert(result.Records)
	case builder.ActionDelete:
		k := result.DeleteKey
		s.store.DeleteByVTECKey(k.Office, k.Phenomena, k.Significance, k.ETN)
	case builder.ActionDrop:
		s.log.Debug().Str("product", formatProductRef(ext.Cccc, ext.Ttaaii)).Msg("dropped stanza")
	}
}

// checkSequenceGap logs (but never fails the pipeline on) a detected gap in
// the per-process sequence ids NWWS-OI attaches to each stanza.
func (s *Supervisor) checkSequenceGap(processID string, seq int) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	if last, ok := s.lastSeq[processID]; ok {
		if expected := last + 1; seq != expected {
			s.log.Warn().
				Str("process_id", processID).
				Int("expected", expected).
				Int("received", seq).
				Int("missed", seq-expected).
				Msg("detected missed NWWS-OI messages")
		}
	}
	s.lastSeq[processID] = seq
}

func generateInstanceID() string {
	return fmt.Sprintf("%d", rand.Intn(90000)+10000)
}

// isAuthError reports whether err represents an XMPP not-authorized
// failure, which is fatal regardless of connection state.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "not-authorized") || strings.Contains(err.Error(), "401")
}

// isNetworkError classifies transient DNS/timeout/reset conditions as
// reconnect-worthy rather than fatal.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"EAI_AGAIN", "ENOTFOUND", "ETIMEDOUT", "errno -3001", "connection reset", "i/o timeout", "broken pipe"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
