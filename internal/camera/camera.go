// Package camera discovers cameras on per-camera point-to-point
// USB-Ethernet links and drives their HTTP control surface.
package camera

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hoopcam/edgectl/internal/logging"
)

var log = logging.L("camera")

// interfacePrefix is the udev-assigned name prefix for USB-Ethernet gadget
// interfaces ("enx" + MAC, e.g. "enxd43260ddac87").
const interfacePrefix = "enx"

// statePort is the fixed port the camera's control HTTP server listens on.
const statePort = 8080

// probeTimeout bounds a single discovery candidate probe.
const probeTimeout = 1 * time.Second

// Camera is a discovered device reachable over a point-to-point link.
type Camera struct {
	Interface    string // opaque interface id, e.g. "enxd43260ddac87"
	IPAddress    string // discovered peer address
	FriendlyName string // advertised SSID
	Angle        string // one of FL, FR, NL, NR, or UNK
	Recording    bool
}

// Chapter is one fragment of a session's recording as listed from a camera.
type Chapter struct {
	Directory string // on-camera directory, e.g. "100GOPRO"
	Filename  string // e.g. "GX018471.MP4"
	SizeBytes int64
	CreatedAt time.Time
	ModifiedAt time.Time
}

// SortKey returns the fragment and recording indices implied by the camera's
// GX??xxxx naming convention, in that order; SortChapters orders by recording
// index first, then fragment index.
func (c Chapter) SortKey() (fragmentIndex, recordingIndex int) {
	name := strings.TrimSuffix(strings.ToUpper(c.Filename), ".MP4")
	// Expect G<X><FF><RRRR>, e.g. GX018471 -> fragment "01", recording "8471".
	if len(name) != 8 || name[0] != 'G' {
		return 0, 0
	}
	digits := name[2:]
	if len(digits) != 6 {
		return 0, 0
	}
	fmt.Sscanf(digits[:2], "%d", &fragmentIndex)
	fmt.Sscanf(digits[2:], "%d", &recordingIndex)
	return fragmentIndex, recordingIndex
}

// SortChapters orders chapters by the authoritative (recording_index,
// fragment_index) tuple, ascending.
func SortChapters(chapters []Chapter) {
	sort.Slice(chapters, func(i, j int) bool {
		fi, ri := chapters[i].SortKey()
		fj, rj := chapters[j].SortKey()
		if ri != rj {
			return ri < rj
		}
		return fi < fj
	})
}

type cacheEntry struct {
	ip         string
	probedAt   time.Time
}

// Adapter discovers cameras and caches their peer address per interface.
type Adapter struct {
	client   *http.Client
	angleMap map[string]string // friendly name -> angle code, operator-supplied

	mu    sync.Mutex
	cache map[string]cacheEntry // interface -> cache entry
}

// NewAdapter builds an Adapter. angleMap is the operator-supplied dictionary
// from advertised SSID to one of {FL, FR, NL, NR}.
func NewAdapter(angleMap map[string]string) *Adapter {
	return &Adapter{
		client:   &http.Client{Timeout: probeTimeout},
		angleMap: angleMap,
		cache:    make(map[string]cacheEntry),
	}
}

// Discover enumerates every local interface matching the USB-Ethernet prefix,
// probes each for a live camera, and returns the set found. A cache entry
// being stale does not fail the call; re-discovery is attempted instead.
func (a *Adapter) Discover(ctx context.Context) ([]Camera, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerate interfaces: %w", err)
	}

	var cameras []Camera
	for _, iface := range ifaces {
		if !strings.HasPrefix(iface.Name, interfacePrefix) {
			continue
		}

		selfIP, err := selfIPv4(iface)
		if err != nil {
			log.Debug("interface has no usable ipv4 address", "interface", iface.Name, "error", err)
			continue
		}

		peerIP, err := a.peerAddressFor(ctx, iface.Name, selfIP)
		if err != nil {
			log.Warn("camera probe failed", "interface", iface.Name, "selfIp", selfIP, "error", err)
			continue
		}

		state, err := a.fetchState(ctx, peerIP)
		if err != nil {
			log.Warn("camera state fetch failed after successful probe", "interface", iface.Name, "peerIp", peerIP, "error", err)
			continue
		}

		name := state.friendlyName()
		cameras = append(cameras, Camera{
			Interface:    iface.Name,
			IPAddress:    peerIP,
			FriendlyName: name,
			Angle:        a.angleFor(name),
		})
	}

	return cameras, nil
}

// peerAddressFor returns the cached or freshly-probed peer IP for interface.
// Cache entries are refreshed by re-probing before each use.
func (a *Adapter) peerAddressFor(ctx context.Context, iface, selfIP string) (string, error) {
	a.mu.Lock()
	entry, ok := a.cache[iface]
	a.mu.Unlock()

	if ok {
		if ip, err := a.probe(ctx, entry.ip); err == nil {
			a.cacheStore(iface, ip)
			return ip, nil
		}
		log.Debug("cached peer address stale, re-discovering", "interface", iface, "cachedIp", entry.ip)
	}

	candidates, err := candidateAddresses(selfIP)
	if err != nil {
		return "", err
	}
	candidates = icmpReachable(candidates)

	for _, candidate := range candidates {
		if ip, err := a.probe(ctx, candidate); err == nil {
			a.cacheStore(iface, ip)
			return ip, nil
		}
	}

	return "", fmt.Errorf("no camera responded among %d candidates for interface %s", len(candidates), iface)
}

func (a *Adapter) cacheStore(iface, ip string) {
	a.mu.Lock()
	a.cache[iface] = cacheEntry{ip: ip, probedAt: time.Now()}
	a.mu.Unlock()
}

// probe issues a one-second-budget GET against the camera state endpoint and
// returns ip if it answers 200.
func (a *Adapter) probe(ctx context.Context, ip string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	url := fmt.Sprintf("http://%s:%d/gopro/camera/state", ip, statePort)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return ip, nil
}

// SetHTTPClient overrides the adapter's HTTP client, used by callers in
// tests that need to point control calls at a fake camera server.
func (a *Adapter) SetHTTPClient(client *http.Client) {
	a.client = client
}

// angleFor maps a friendly name to an angle code using an exact,
// case-insensitive, then substring match cascade. UNK means the orchestrator
// must filter the session rather than treat it as a fatal error.
func (a *Adapter) angleFor(friendlyName string) string {
	return matchAngle(a.angleMap, friendlyName)
}

// candidateAddresses derives the camera's candidate addresses from our own
// last octet: 50 -> {51,1}; 51 -> {50,1}; other -> {51,50,1}.
func candidateAddresses(selfIP string) ([]string, error) {
	ip := net.ParseIP(selfIP)
	if ip == nil {
		return nil, fmt.Errorf("invalid self IP %q", selfIP)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("self IP %q is not IPv4", selfIP)
	}

	base := ip4[:3]
	octet := func(last byte) string {
		return fmt.Sprintf("%d.%d.%d.%d", base[0], base[1], base[2], last)
	}

	var candidates []byte
	switch ip4[3] {
	case 50:
		candidates = []byte{51, 1}
	case 51:
		candidates = []byte{50, 1}
	default:
		candidates = []byte{51, 50, 1}
	}

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == ip4[3] {
			continue
		}
		out = append(out, octet(c))
	}
	return out, nil
}

// selfIPv4 returns the interface's own IPv4 address.
func selfIPv4(iface net.Interface) (string, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		return "", err
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		return ip4.String(), nil
	}
	return "", fmt.Errorf("no ipv4 address on interface")
}
