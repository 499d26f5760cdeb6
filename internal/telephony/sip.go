package telephony

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
)

// SIPConfig describes the PBX account the softphone registers calls against.
type SIPConfig struct {
	PBXHost     string
	Login       string
	Password    string
	DisplayName string

	// ListenAddr is where inbound requests are accepted, e.g. "0.0.0.0:5060".
	ListenAddr string
	Transport  string

	// AdvertiseHost/Port are written into Contact headers and SDP.
	AdvertiseHost string
	AdvertisePort int
	MediaPort     int

	// RingTimeout bounds how long an outbound INVITE may ring unanswered.
	RingTimeout time.Duration
}

func (c SIPConfig) withDefaults() SIPConfig {
	out := c
	if out.Transport == "" {
		out.Transport = "udp"
	}
	if out.ListenAddr == "" {
		out.ListenAddr = "0.0.0.0:5060"
	}
	if out.AdvertisePort <= 0 {
		out.AdvertisePort = 5060
	}
	if out.MediaPort <= 0 {
		out.MediaPort = 40000
	}
	if out.RingTimeout <= 0 {
		out.RingTimeout = 30 * time.Second
	}
	if out.DisplayName == "" {
		out.DisplayName = out.Login
	}
	return out
}

// SIPClient is a SignalingClient speaking SIP directly to the PBX.
//
// It carries at most one dialog at a time: an outbound call placed with
// PlaceCall, or an inbound call that is auto-answered.
type SIPClient struct {
	cfg    SIPConfig
	log    *slog.Logger
	ua     *sipgo.UserAgent
	srv    *sipgo.Server
	client *sipgo.Client

	events chan Event

	// authenticate retries a challenged INVITE with credentials.
	authenticate func(ctx context.Context, req *sip.Request, res *sip.Response) (sip.ClientTransaction, error)

	mu     sync.Mutex
	call   *dialog
	closed bool
}

// dialog is the SIP state of the active call.
type dialog struct {
	inbound     bool
	established bool

	invite *sip.Request
	tx     sip.ClientTransaction
	cancel context.CancelFunc

	callID string
	from   *sip.FromHeader
	to     *sip.ToHeader
	target sip.Uri
	cseq   uint32
}

func NewSIPClient(cfg SIPConfig, log *slog.Logger) (*SIPClient, error) {
	cfg = cfg.withDefaults()
	if cfg.PBXHost == "" || cfg.Login == "" {
		return nil, fmt.Errorf("%w: pbx host and login are required", ErrInvalidInput)
	}
	if cfg.AdvertiseHost == "" {
		return nil, fmt.Errorf("%w: advertise host is required", ErrInvalidInput)
	}
	if log == nil {
		log = slog.Default()
	}

	ua, err := sipgo.NewUA(sipgo.WithUserAgent("softphone-dialer"))
	if err != nil {
		return nil, fmt.Errorf("sip user agent: %w", err)
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		_ = ua.Close()
		return nil, fmt.Errorf("sip server: %w", err)
	}
	client, err := sipgo.NewClient(ua, sipgo.WithClientHostname(cfg.AdvertiseHost))
	if err != nil {
		_ = ua.Close()
		return nil, fmt.Errorf("sip client: %w", err)
	}

	c := &SIPClient{
		cfg:    cfg,
		log:    log.With("component", "sip"),
		ua:     ua,
		srv:    srv,
		client: client,
		events: make(chan Event, eventBuffer),
	}
	c.authenticate = c.digestAuth
	srv.OnRequest(sip.INVITE, c.onInvite)
	srv.OnRequest(sip.BYE, c.onBye)
	srv.OnRequest(sip.ACK, func(req *sip.Request, tx sip.ServerTransaction) {})
	return c, nil
}

// Serve accepts inbound requests until ctx is cancelled.
func (c *SIPClient) Serve(ctx context.Context) error {
	c.log.Info("sip listening", "transport", c.cfg.Transport, "addr", c.cfg.ListenAddr)
	return c.srv.ListenAndServe(ctx, c.cfg.Transport, c.cfg.ListenAddr)
}

func (c *SIPClient) Events() <-chan Event { return c.events }

func (c *SIPClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.call != nil && c.call.cancel != nil {
		c.call.cancel()
	}
	c.call = nil
	close(c.events)
	c.mu.Unlock()
	return c.ua.Close()
}

func (c *SIPClient) PlaceCall(ctx context.Context, number string) error {
	number = normalizeNumber(number)
	if number == "" {
		return fmt.Errorf("%w: number", ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.call != nil {
		return ErrCallActive
	}

	invite, err := c.buildInvite(number)
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(context.Background(), c.cfg.RingTimeout)
	tx, err := c.client.TransactionRequest(callCtx, invite)
	if err != nil {
		cancel()
		return fmt.Errorf("send invite: %w", err)
	}

	d := &dialog{
		invite: invite,
		tx:     tx,
		cancel: cancel,
		callID: string(*invite.CallID()),
		from:   invite.From(),
		target: invite.Recipient,
		cseq:   1,
	}
	c.call = d
	c.log.Info("invite sent", "call_id", d.callID, "to", number)

	go c.awaitAnswer(callCtx, d)
	return nil
}

func (c *SIPClient) Hangup(ctx context.Context) error {
	c.mu.Lock()
	d := c.call
	c.mu.Unlock()
	if d == nil {
		return ErrNoActiveCall
	}

	if !d.inbound && !d.established {
		return c.sendCancel(ctx, d)
	}

	res, err := c.inDialog(ctx, d, c.request(d, sip.BYE))
	if err != nil {
		return fmt.Errorf("send bye: %w", err)
	}
	c.log.Info("bye answered", "call_id", d.callID, "status", int(res.StatusCode))
	c.finish(d, c.endedEvent(d))
	return nil
}

// SendDigits relays DTMF with SIP INFO, one request per digit.
func (c *SIPClient) SendDigits(ctx context.Context, digits string) error {
	d, err := c.established()
	if err != nil {
		return err
	}
	for _, r := range digits {
		if !isDTMF(r) {
			return fmt.Errorf("%w: digit %q", ErrInvalidInput, r)
		}
		req := c.request(d, sip.INFO)
		ct := sip.ContentTypeHeader("application/dtmf-relay")
		req.AppendHeader(&ct)
		req.SetBody([]byte(fmt.Sprintf("Signal=%c\r\nDuration=160\r\n", r)))
		if _, err := c.inDialog(ctx, d, req); err != nil {
			return fmt.Errorf("send dtmf: %w", err)
		}
	}
	return nil
}

// Transfer asks the PBX to blind-transfer the remote party with REFER.
// The PBX ends our leg with a BYE once the transfer succeeds.
func (c *SIPClient) Transfer(ctx context.Context, number string) error {
	number = normalizeNumber(number)
	if number == "" {
		return fmt.Errorf("%w: number", ErrInvalidInput)
	}
	d, err := c.established()
	if err != nil {
		return err
	}
	req := c.request(d, sip.REFER)
	req.AppendHeader(sip.NewHeader("Refer-To", fmt.Sprintf("<sip:%s@%s>", number, c.cfg.PBXHost)))
	req.AppendHeader(sip.NewHeader("Referred-By", fmt.Sprintf("<sip:%s@%s>", c.cfg.Login, c.cfg.PBXHost)))
	if _, err := c.inDialog(ctx, d, req); err != nil {
		return fmt.Errorf("send refer: %w", err)
	}
	return nil
}

func (c *SIPClient) established() (*dialog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.call == nil || !c.call.established {
		return nil, ErrNoActiveCall
	}
	return c.call, nil
}

// awaitAnswer drives the INVITE client transaction to its final response.
func (c *SIPClient) awaitAnswer(ctx context.Context, d *dialog) {
	authed := false
	ringing := false
	for {
		select {
		case <-ctx.Done():
			if c.current(d) && !c.isEstablished(d) {
				_ = c.sendCancel(context.Background(), d)
				c.finish(d, Event{Type: EventCancelled})
			}
			return

		case <-d.tx.Done():
			if c.current(d) && !c.isEstablished(d) {
				c.finish(d, Event{Type: EventCancelled})
			}
			return

		case res := <-d.tx.Responses():
			if res == nil {
				continue
			}
			code := int(res.StatusCode)
			switch {
			case code == 100:
			case code == 180 || code == 183:
				if !ringing {
					ringing = true
					c.emit(Event{Type: EventRinging})
				}
			case code >= 200 && code < 300:
				c.answered(d, res)
				return
			case (code == 401 || code == 407) && !authed && c.cfg.Password != "":
				authed = true
				tx, err := c.authenticate(ctx, d.invite, res)
				if err != nil {
					c.finish(d, Event{Type: EventError, Message: "authentication failed: " + err.Error()})
					return
				}
				c.mu.Lock()
				d.tx = tx
				if cseq := d.invite.CSeq(); cseq != nil {
					d.cseq = cseq.SeqNo
				}
				c.mu.Unlock()
			default:
				c.log.Info("invite failed", "call_id", d.callID, "status", code, "reason", res.Reason)
				c.finish(d, failureEvents(code, res.Reason)...)
				return
			}
		}
	}
}

func (c *SIPClient) digestAuth(ctx context.Context, req *sip.Request, res *sip.Response) (sip.ClientTransaction, error) {
	return c.client.DoDigestAuth(ctx, req, res, sipgo.DigestAuth{
		Username: c.cfg.Login,
		Password: c.cfg.Password,
	})
}

func (c *SIPClient) answered(d *dialog, res *sip.Response) {
	c.mu.Lock()
	d.established = true
	d.to = res.To()
	if contact := res.Contact(); contact != nil {
		d.target = contact.Address
	}
	c.mu.Unlock()

	if err := c.sendAck(d, res); err != nil {
		c.log.Warn("ack failed", "call_id", d.callID, "err", err)
	}
	if addr, port, err := remoteMedia(res.Body()); err == nil {
		c.log.Debug("remote media", "call_id", d.callID, "addr", addr, "port", port)
	}
	c.emit(Event{Type: EventAccepted})
}

func (c *SIPClient) sendAck(d *dialog, res *sip.Response) error {
	ack := sip.NewRequest(sip.ACK, d.target)
	sip.CopyHeaders("From", d.invite, ack)
	sip.CopyHeaders("Call-ID", d.invite, ack)
	if to := res.To(); to != nil {
		ack.AppendHeader(&sip.ToHeader{DisplayName: to.DisplayName, Address: to.Address, Params: to.Params})
	}
	if cseq := d.invite.CSeq(); cseq != nil {
		ack.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.ACK})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)
	return c.client.WriteRequest(ack)
}

func (c *SIPClient) sendCancel(ctx context.Context, d *dialog) error {
	req := sip.NewRequest(sip.CANCEL, d.invite.Recipient)
	sip.CopyHeaders("Via", d.invite, req)
	sip.CopyHeaders("From", d.invite, req)
	sip.CopyHeaders("To", d.invite, req)
	sip.CopyHeaders("Call-ID", d.invite, req)
	if cseq := d.invite.CSeq(); cseq != nil {
		req.AppendHeader(&sip.CSeqHeader{SeqNo: cseq.SeqNo, MethodName: sip.CANCEL})
	}
	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	tx, err := c.client.TransactionRequest(cctx, req)
	if err != nil {
		return fmt.Errorf("send cancel: %w", err)
	}
	defer tx.Terminate()
	select {
	case <-tx.Responses():
	case <-tx.Done():
	case <-cctx.Done():
	}
	return nil
}

func (c *SIPClient) onInvite(req *sip.Request, tx sip.ServerTransaction) {
	c.mu.Lock()
	busy := c.closed || c.call != nil
	c.mu.Unlock()
	if busy {
		_ = tx.Respond(sip.NewResponseFromRequest(req, 486, "Busy Here", nil))
		return
	}

	body, err := buildSDP(c.cfg.AdvertiseHost, c.cfg.MediaPort, uint64(time.Now().Unix()))
	if err != nil {
		_ = tx.Respond(sip.NewResponseFromRequest(req, 500, "Server Internal Error", nil))
		return
	}
	_ = tx.Respond(sip.NewResponseFromRequest(req, 180, "Ringing", nil))

	localTag := uuid.NewString()[:8]
	ok := sip.NewResponseFromRequest(req, 200, "OK", body)
	if to := ok.To(); to != nil {
		if to.Params == nil {
			to.Params = sip.NewParams()
		}
		if _, has := to.Params.Get("tag"); !has {
			to.Params.Add("tag", localTag)
		}
	}
	ok.AppendHeader(c.contact())
	ct := sip.ContentTypeHeader("application/sdp")
	ok.AppendHeader(&ct)

	d := &dialog{inbound: true, established: true, cseq: 1}
	if id := req.CallID(); id != nil {
		d.callID = string(*id)
	}
	if to := ok.To(); to != nil {
		d.from = &sip.FromHeader{DisplayName: to.DisplayName, Address: to.Address, Params: to.Params}
	}
	caller := ""
	if from := req.From(); from != nil {
		d.to = &sip.ToHeader{DisplayName: from.DisplayName, Address: from.Address, Params: from.Params}
		caller = from.Address.User
	}
	d.target = req.Recipient
	if contact := req.Contact(); contact != nil {
		d.target = contact.Address
	}

	c.mu.Lock()
	if c.closed || c.call != nil {
		c.mu.Unlock()
		_ = tx.Respond(sip.NewResponseFromRequest(req, 486, "Busy Here", nil))
		return
	}
	c.call = d
	c.mu.Unlock()

	if err := tx.Respond(ok); err != nil {
		c.log.Warn("answer inbound failed", "call_id", d.callID, "err", err)
		c.finish(d)
		return
	}
	c.log.Info("inbound call answered", "call_id", d.callID, "from", caller)
	c.emit(Event{Type: EventIncomingCall, Number: caller})
}

func (c *SIPClient) onBye(req *sip.Request, tx sip.ServerTransaction) {
	c.mu.Lock()
	d := c.call
	c.mu.Unlock()

	id := ""
	if h := req.CallID(); h != nil {
		id = string(*h)
	}
	if d == nil || d.callID != id {
		_ = tx.Respond(sip.NewResponseFromRequest(req, 481, "Call/Transaction Does Not Exist", nil))
		return
	}
	_ = tx.Respond(sip.NewResponseFromRequest(req, 200, "OK", nil))
	c.log.Info("remote hangup", "call_id", id)
	c.finish(d, c.endedEvent(d))
}

func (c *SIPClient) endedEvent(d *dialog) Event {
	if d.inbound {
		return Event{Type: EventEndIncomingCall}
	}
	return Event{Type: EventBye}
}

// request builds an in-dialog request with the next CSeq.
func (c *SIPClient) request(d *dialog, method sip.RequestMethod) *sip.Request {
	c.mu.Lock()
	d.cseq++
	seq := d.cseq
	c.mu.Unlock()

	req := sip.NewRequest(method, d.target)
	if d.from != nil {
		req.AppendHeader(&sip.FromHeader{DisplayName: d.from.DisplayName, Address: d.from.Address, Params: d.from.Params})
	}
	if d.to != nil {
		req.AppendHeader(&sip.ToHeader{DisplayName: d.to.DisplayName, Address: d.to.Address, Params: d.to.Params})
	}
	callID := sip.CallIDHeader(d.callID)
	req.AppendHeader(&callID)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: seq, MethodName: method})
	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)
	req.AppendHeader(c.contact())
	return req
}

// inDialog sends req and waits for its final response.
func (c *SIPClient) inDialog(ctx context.Context, d *dialog, req *sip.Request) (*sip.Response, error) {
	tx, err := c.client.TransactionRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	defer tx.Terminate()
	for {
		select {
		case res := <-tx.Responses():
			if res == nil {
				continue
			}
			code := int(res.StatusCode)
			if code < 200 {
				continue
			}
			if code >= 300 {
				return res, fmt.Errorf("%s rejected: %d %s", req.Method, code, res.Reason)
			}
			return res, nil
		case <-tx.Done():
			return nil, fmt.Errorf("%s: transaction ended without response", req.Method)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *SIPClient) buildInvite(number string) (*sip.Request, error) {
	var uri sip.Uri
	if err := sip.ParseUri(fmt.Sprintf("sip:%s@%s", number, c.cfg.PBXHost), &uri); err != nil {
		return nil, fmt.Errorf("%w: target uri: %v", ErrInvalidInput, err)
	}
	body, err := buildSDP(c.cfg.AdvertiseHost, c.cfg.MediaPort, uint64(time.Now().Unix()))
	if err != nil {
		return nil, err
	}

	invite := sip.NewRequest(sip.INVITE, uri)
	maxFwd := sip.MaxForwardsHeader(70)
	invite.AppendHeader(&maxFwd)

	fromParams := sip.NewParams()
	fromParams.Add("tag", uuid.NewString()[:8])
	invite.AppendHeader(&sip.FromHeader{
		DisplayName: c.cfg.DisplayName,
		Address:     sip.Uri{Scheme: "sip", User: c.cfg.Login, Host: c.cfg.PBXHost},
		Params:      fromParams,
	})
	invite.AppendHeader(&sip.ToHeader{Address: uri, Params: sip.NewParams()})

	callID := sip.CallIDHeader(uuid.NewString())
	invite.AppendHeader(&callID)
	invite.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: sip.INVITE})
	invite.AppendHeader(c.contact())

	ct := sip.ContentTypeHeader("application/sdp")
	invite.AppendHeader(&ct)
	invite.SetBody(body)
	return invite, nil
}

func (c *SIPClient) contact() *sip.ContactHeader {
	return &sip.ContactHeader{Address: sip.Uri{
		Scheme: "sip",
		User:   c.cfg.Login,
		Host:   c.cfg.AdvertiseHost,
		Port:   c.cfg.AdvertisePort,
	}}
}

func (c *SIPClient) current(d *dialog) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.call == d
}

func (c *SIPClient) isEstablished(d *dialog) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return d.established
}

// finish releases d if it is still the active dialog and emits evs.
func (c *SIPClient) finish(d *dialog, evs ...Event) {
	c.mu.Lock()
	if c.call != d {
		c.mu.Unlock()
		return
	}
	c.call = nil
	if d.cancel != nil {
		d.cancel()
	}
	c.mu.Unlock()
	for _, ev := range evs {
		c.emit(ev)
	}
}

func (c *SIPClient) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.log.Error("signaling event dropped", "type", string(ev.Type))
	}
}

// failureEvents maps a final INVITE failure to the events the dialer understands.
func failureEvents(code int, reason string) []Event {
	switch {
	case code == 480:
		return []Event{{Type: EventCustomerUnavailable}, {Type: EventRejected}}
	case code == 486 || code == 600 || code == 603 || code == 404 || code == 484:
		return []Event{{Type: EventRejected}}
	case code == 487 || code == 408:
		return []Event{{Type: EventCancelled}}
	case code == 401 || code == 403 || code == 407:
		return []Event{{Type: EventError, Message: fmt.Sprintf("%d %s", code, reason), Temporary: false}}
	default:
		return []Event{
			{Type: EventRejected},
			{Type: EventError, Message: fmt.Sprintf("%d %s", code, reason), Temporary: true},
		}
	}
}

func normalizeNumber(n string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(n) {
		switch {
		case r >= '0' && r <= '9', r == '*', r == '#':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDTMF(r rune) bool {
	return (r >= '0' && r <= '9') || r == '*' || r == '#' || (r >= 'A' && r <= 'D')
}

var _ SignalingClient = (*SIPClient)(nil)
