package helpertest

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/dnsparity/dnsparity/config"

	"github.com/miekg/dns"
	"github.com/onsi/ginkgo/v2"
)

// TestServer is an in-process nameserver on loopback, listening on the same
// port for UDP and TCP so the truncation retry path can switch transports
type TestServer struct {
	address string
	udp     *dns.Server
	tcp     *dns.Server
}

// NewTestServer starts a server for the given handler on an ephemeral port.
// Shutdown is registered as ginkgo cleanup.
func NewTestServer(handler dns.Handler) (*TestServer, error) {
	pconn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("can't listen on udp: %w", err)
	}

	address := pconn.LocalAddr().String()

	listener, err := net.Listen("tcp", address)
	if err != nil {
		pconn.Close()

		return nil, fmt.Errorf("can't listen on tcp: %w", err)
	}

	srv := &TestServer{
		address: address,
		udp:     &dns.Server{PacketConn: pconn, Handler: handler},
		tcp:     &dns.Server{Listener: listener, Handler: handler},
	}

	// Shutdown is a silent no-op on a server that has not finished
	// starting, so Close must not race the serve goroutines
	udpStarted := make(chan struct{})
	tcpStarted := make(chan struct{})
	srv.udp.NotifyStartedFunc = func() { close(udpStarted) }
	srv.tcp.NotifyStartedFunc = func() { close(tcpStarted) }

	go func() { _ = srv.udp.ActivateAndServe() }()
	go func() { _ = srv.tcp.ActivateAndServe() }()

	<-udpStarted
	<-tcpStarted

	ginkgo.DeferCleanup(srv.Close)

	return srv, nil
}

// Address returns the host:port the server listens on
func (s *TestServer) Address() string {
	return s.address
}

// Upstream returns the server as an upstream definition
func (s *TestServer) Upstream() config.Upstream {
	host, portStr, _ := net.SplitHostPort(s.address)
	port, _ := strconv.Atoi(portStr)

	return config.Upstream{Net: config.NetUDP, Host: host, Port: uint16(port)}
}

// Close shuts down both listeners
func (s *TestServer) Close() {
	_ = s.udp.Shutdown()
	_ = s.tcp.Shutdown()
}

// ZoneHandler is a programmable dns.Handler serving a static record set.
// All mutators are safe for concurrent use with the running server.
type ZoneHandler struct {
	mu      sync.RWMutex
	records map[string][]dns.RR
	rcodes  map[string]int

	// TruncateUDP answers UDP queries with an empty truncated response,
	// forcing clients onto TCP
	TruncateUDP bool

	// Mangle post-processes every response, for deliberately broken
	// server behavior
	Mangle func(*dns.Msg)
}

// NewZoneHandler creates an empty handler
func NewZoneHandler() *ZoneHandler {
	return &ZoneHandler{
		records: make(map[string][]dns.RR),
		rcodes:  make(map[string]int),
	}
}

// Add registers records given in zone file format
func (h *ZoneHandler) Add(rrs ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, s := range rrs {
		rr := MustRR(s)
		name := dns.CanonicalName(rr.Header().Name)
		h.records[name] = append(h.records[name], rr)
	}
}

// AddRR registers an already built record
func (h *ZoneHandler) AddRR(rr dns.RR) {
	h.mu.Lock()
	defer h.mu.Unlock()

	name := dns.CanonicalName(rr.Header().Name)
	h.records[name] = append(h.records[name], rr)
}

// SetRcode forces a response code for one name
func (h *ZoneHandler) SetRcode(name string, rcode int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.rcodes[dns.CanonicalName(name)] = rcode
}

// ServeDNS implements `dns.Handler`.
func (h *ZoneHandler) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	response := h.prepareResponse(w, req)

	_ = w.WriteMsg(response)
}

func (h *ZoneHandler) prepareResponse(w dns.ResponseWriter, req *dns.Msg) *dns.Msg {
	response := new(dns.Msg)

	if len(req.Question) != 1 {
		return response.SetRcode(req, dns.RcodeFormatError)
	}

	question := req.Question[0]
	name := dns.CanonicalName(question.Name)

	h.mu.RLock()
	defer h.mu.RUnlock()

	if rcode, ok := h.rcodes[name]; ok {
		response.SetRcode(req, rcode)

		return h.finish(w, req, response)
	}

	records, known := h.records[name]
	if !known {
		response.SetRcode(req, dns.RcodeNameError)

		return h.finish(w, req, response)
	}

	response.SetReply(req)

	for _, rr := range records {
		if sig, ok := rr.(*dns.RRSIG); ok {
			if sig.TypeCovered == question.Qtype {
				response.Answer = append(response.Answer, rr)
			}

			continue
		}

		if rr.Header().Rrtype == question.Qtype {
			response.Answer = append(response.Answer, rr)
		}
	}

	return h.finish(w, req, response)
}

func (h *ZoneHandler) finish(w dns.ResponseWriter, req, response *dns.Msg) *dns.Msg {
	if opt := req.IsEdns0(); opt != nil {
		response.SetEdns0(opt.UDPSize(), opt.Do())
	}

	if h.TruncateUDP && isUDP(w) {
		response.Truncated = true
		response.Answer = nil
		response.Ns = nil
	}

	if h.Mangle != nil {
		h.Mangle(response)
	}

	return response
}

func isUDP(w dns.ResponseWriter) bool {
	return strings.HasPrefix(w.RemoteAddr().Network(), "udp")
}
