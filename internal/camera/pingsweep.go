package camera

import (
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// pingTimeout bounds a single ICMP echo round trip during the pre-filter
// sweep. It is intentionally shorter than probeTimeout since a camera that
// doesn't answer ICMP within this window is very unlikely to answer the
// HTTP state endpoint within the full probe budget either.
const pingTimeout = 300 * time.Millisecond

// icmpReachable returns candidates reordered so that those answering an ICMP
// echo come first, each group keeping the order given. It is a cheap pre-filter ahead of the HTTP probe loop: on a
// multi-camera device with several USB-Ethernet links up at once, a failed
// ICMP echo is far cheaper to observe than a failed 1s HTTP GET, so ordering
// the HTTP probes by ICMP-reachability-first avoids paying the full HTTP
// timeout for candidates that are plainly not there.
//
// A candidate that doesn't answer ICMP is not dropped outright — some camera
// firmware disables ICMP echo replies while still serving HTTP — it is only
// deprioritised, appended after every ICMP-reachable candidate.
func icmpReachable(candidates []string) []string {
	conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if err != nil {
		// No raw-socket privilege (common in unprivileged containers): skip
		// the pre-filter and probe every candidate via HTTP as before.
		return candidates
	}
	defer conn.Close()

	var reachable, unreachable []string
	for _, candidate := range candidates {
		if pingOnce(conn, candidate) {
			reachable = append(reachable, candidate)
		} else {
			unreachable = append(unreachable, candidate)
		}
	}
	return append(reachable, unreachable...)
}

func pingOnce(conn *icmp.PacketConn, target string) bool {
	ip := net.ParseIP(target)
	if ip == nil {
		return false
	}

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   os.Getpid() & 0xffff,
			Seq:  1,
			Data: []byte("hoopcam-discover"),
		},
	}
	wb, err := msg.Marshal(nil)
	if err != nil {
		return false
	}
	if _, err := conn.WriteTo(wb, &net.IPAddr{IP: ip}); err != nil {
		return false
	}

	if err := conn.SetReadDeadline(time.Now().Add(pingTimeout)); err != nil {
		return false
	}
	rb := make([]byte, 512)
	for {
		n, _, err := conn.ReadFrom(rb)
		if err != nil {
			return false
		}
		parsed, err := icmp.ParseMessage(1, rb[:n])
		if err != nil {
			continue
		}
		if parsed.Type == ipv4.ICMPTypeEchoReply {
			return true
		}
	}
}
