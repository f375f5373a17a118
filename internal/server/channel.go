package server

import (
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/matthewbaird/pagecomposer/internal/dragdrop"
	"github.com/matthewbaird/pagecomposer/internal/hst"
	"github.com/matthewbaird/pagecomposer/internal/rpc"
	"github.com/matthewbaird/pagecomposer/internal/session"
)

// EventReady is triggered on a new channel once its session is set up.
// Commands sent before it may not be served.
const EventReady = "session:ready"

// Ready is the payload of EventReady.
type Ready struct {
	SessionID string           `json:"sessionId"`
	Page      session.PageView `json:"page"`
}

// channelHandler upgrades /ws/channel requests and runs one editing
// session per connection.
type channelHandler struct {
	store       hst.Store
	origins     []string
	hstURL      string
	user        string
	callTimeout time.Duration
	sessions    *session.Manager
	publisher   dragdrop.Publisher
	debug       bool
}

func newChannelHandler(cfg Config) *channelHandler {
	h := &channelHandler{
		store:       cfg.Store,
		origins:     cfg.Origins,
		hstURL:      cfg.HSTURL,
		user:        cfg.User,
		callTimeout: cfg.CallTimeout,
		sessions:    cfg.Sessions,
		debug:       cfg.Debug,
	}
	if cfg.Bus != nil {
		h.publisher = cfg.Bus
	}
	if h.sessions == nil {
		h.sessions = session.NewManager(0, 0)
	}
	return h
}

// ServeHTTP serves ?page=<id> (the demo page when omitted). An optional
// ?channel=<id> is forwarded to the REST endpoint.
func (h *channelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pageID := r.URL.Query().Get("page")
	if pageID == "" {
		pageID = hst.DemoPageID
	}

	target, err := rpc.Accept(w, r, h.origins)
	if err != nil {
		log.Printf("server: websocket accept: %v", err)
		return
	}
	defer target.Close()
	ctx := r.Context()

	opts := []rpc.Option{rpc.WithCallTimeout(h.callTimeout)}
	if h.debug {
		opts = append(opts, rpc.WithDebugLog())
	}
	ch := rpc.New(opts...)

	cfg := session.Config{
		PageID:    pageID,
		Channel:   ch,
		Source:    hst.PageSource{Store: h.store, User: h.user},
		Publisher: h.publisher,
	}
	if h.hstURL != "" {
		client := hst.NewClient(h.hstURL, hst.WithUser(h.user), hst.WithChannel(r.URL.Query().Get("channel")))
		cfg.Persister, cfg.Containers = client, client
	} else {
		cfg.Persister = hst.LocalPersister{Store: h.store, User: h.user}
		cfg.Containers = h.store
	}

	sess := session.New(cfg)
	if err := sess.Open(ctx); err != nil {
		log.Printf("server: opening session for page %s: %v", pageID, err)
		ch.Destroy()
		return
	}
	if err := sess.RegisterCommands(); err != nil {
		log.Printf("server: %v", err)
		ch.Destroy()
		return
	}
	if err := ch.Initialize(target); err != nil {
		log.Printf("server: initializing channel: %v", err)
		ch.Destroy()
		return
	}
	h.sessions.Add(sess)
	defer h.sessions.Remove(sess.ID)
	log.Printf("server: session %s opened for page %s from %s", sess.ID, pageID, target.Origin())

	if err := ch.Trigger(ctx, EventReady, Ready{SessionID: sess.ID, Page: sess.Page()}); err != nil {
		log.Printf("server: session %s: %v", sess.ID, err)
		return
	}

	select {
	case <-target.Done():
	case <-ctx.Done():
	case <-sess.Done():
		log.Printf("server: session %s expired", sess.ID)
		if err := target.CloseWith(websocket.StatusGoingAway, "session expired"); err != nil {
			log.Printf("server: closing session %s: %v", sess.ID, err)
		}
	}
	log.Printf("server: session %s closed", sess.ID)
}

var _ session.ContainerGetter = (*hst.Client)(nil)
