package backend

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/dnsparity/dnsparity/config"
	"github.com/dnsparity/dnsparity/helpertest"
	"github.com/dnsparity/dnsparity/model"

	"github.com/miekg/dns"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const testTimeout = 2 * time.Second

// rawUDPResponder answers every datagram with fixed bytes, for response
// shapes a dns.Server cannot produce
func rawUDPResponder(response []byte) config.Upstream {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	Expect(err).Should(Succeed())

	DeferCleanup(func() { _ = pc.Close() })

	go func() {
		buf := make([]byte, 512)

		for {
			_, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}

			if response != nil {
				_, _ = pc.WriteTo(response, addr)
			}
		}
	}()

	host, portStr, _ := net.SplitHostPort(pc.LocalAddr().String())
	port, _ := strconv.Atoi(portStr)

	return config.Upstream{Net: config.NetUDP, Host: host, Port: uint16(port)}
}

var _ = Describe("NetworkBackend", func() {
	var (
		ctx     context.Context
		handler *helpertest.ZoneHandler
		server  *helpertest.TestServer
		sut     *NetworkBackend
	)

	BeforeEach(func() {
		var cancel context.CancelFunc

		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)

		handler = helpertest.NewZoneHandler()
		handler.Add("www.example.org. 123 IN A 192.0.2.10")

		var err error

		server, err = helpertest.NewTestServer(handler)
		Expect(err).Should(Succeed())

		sut = NewNetworkBackend(server.Upstream(), testTimeout)
	})

	It("resolves a query over UDP", func() {
		response, err := sut.Query(ctx, model.NewQuery("www.example.org.", helpertest.A))
		Expect(err).Should(Succeed())

		Expect(response.Protocol).Should(Equal(model.UDP))
		Expect(response.Res.Rcode).Should(Equal(dns.RcodeSuccess))
		Expect(response.Res.Answer).Should(HaveLen(1))
		Expect(response.Wire).ShouldNot(BeEmpty())
	})

	It("answers NXDOMAIN for unknown names", func() {
		response, err := sut.Query(ctx, model.NewQuery("unknown.example.org.", helpertest.A))
		Expect(err).Should(Succeed())

		Expect(response.Res.Rcode).Should(Equal(dns.RcodeNameError))
	})

	It("retries once over TCP when the UDP response is truncated", func() {
		handler.TruncateUDP = true

		response, err := sut.Query(ctx, model.NewQuery("www.example.org.", helpertest.A))
		Expect(err).Should(Succeed())

		Expect(response.Protocol).Should(Equal(model.TCP))
		Expect(response.Res.Truncated).Should(BeFalse())
		Expect(response.Res.Answer).Should(HaveLen(1))
	})

	It("uses TCP directly for a tcp upstream", func() {
		upstream := server.Upstream()
		upstream.Net = config.NetTCP

		sut = NewNetworkBackend(upstream, testTimeout)

		response, err := sut.Query(ctx, model.NewQuery("www.example.org.", helpertest.A))
		Expect(err).Should(Succeed())

		Expect(response.Protocol).Should(Equal(model.TCP))
	})

	Describe("failure classification", func() {
		It("classifies unparseable response bytes as malformed", func() {
			sut = NewNetworkBackend(rawUDPResponder([]byte{0xde, 0xad}), testTimeout)

			_, err := sut.Query(ctx, model.NewQuery("www.example.org.", helpertest.A))
			Expect(err).Should(HaveOccurred())
			Expect(IsKind(err, ErrorKindMalformedResponse)).Should(BeTrue())
			Expect(IsTransient(err)).Should(BeFalse())
		})

		It("classifies a mismatched message id as protocol error", func() {
			handler.Mangle = func(response *dns.Msg) {
				response.Id++
			}

			_, err := sut.Query(ctx, model.NewQuery("www.example.org.", helpertest.A))
			Expect(err).Should(HaveOccurred())
			Expect(IsKind(err, ErrorKindProtocolError)).Should(BeTrue())
		})

		It("classifies a silent upstream as timeout", func() {
			sut = NewNetworkBackend(rawUDPResponder(nil), 200*time.Millisecond)

			_, err := sut.Query(ctx, model.NewQuery("www.example.org.", helpertest.A))
			Expect(err).Should(HaveOccurred())
			Expect(IsKind(err, ErrorKindTimeout)).Should(BeTrue())
			Expect(IsTransient(err)).Should(BeTrue())
		})

		It("classifies a refused TCP connection as transient", func() {
			// an upstream nobody listens on
			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).Should(Succeed())

			address := listener.Addr().String()
			Expect(listener.Close()).Should(Succeed())

			host, portStr, _ := net.SplitHostPort(address)
			port, _ := strconv.Atoi(portStr)

			sut = NewNetworkBackend(
				config.Upstream{Net: config.NetTCP, Host: host, Port: uint16(port)}, testTimeout)

			_, err = sut.Query(ctx, model.NewQuery("www.example.org.", helpertest.A))
			Expect(err).Should(HaveOccurred())
			Expect(IsTransient(err)).Should(BeTrue())
		})
	})
})
