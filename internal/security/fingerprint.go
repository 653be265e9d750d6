package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	licerrors "allyinlic/internal/errors"
)

// BindingSimilarityThreshold is the minimum fingerprint similarity accepted
// when the stored and current fingerprints are not identical. The 0.8 value
// and the position-wise comparison are a compatibility contract: they are a
// cheap drift-tolerance heuristic, not a cryptographic or statistical
// measure, and changing either is a behavior change requiring sign-off.
const BindingSimilarityThreshold = 0.8

// MachineIDLength is the hex length of the short machine identifier.
const MachineIDLength = 16

// SignalSource collects one machine identification signal. Collection is
// best effort: a source that cannot produce its signal on this platform
// reports ok=false and is skipped.
type SignalSource interface {
	Name() string
	Collect(ctx context.Context) (string, bool)
}

// Generator produces machine identifiers and hardware fingerprints.
type Generator struct {
	sources       []SignalSource
	sourceTimeout time.Duration

	cacheMutex    sync.RWMutex
	cachedFull    string
	cacheExpiry   time.Time
	cacheDuration time.Duration
}

// NewGenerator creates a generator with the default signal sources and a
// per-source collection timeout.
func NewGenerator() *Generator {
	return &Generator{
		sources: []SignalSource{
			osSignal{},
			macSignal{},
			cpuSignal{},
			memorySignal{},
			diskSignal{},
			networkSignal{},
		},
		sourceTimeout: 2 * time.Second,
		cacheDuration: time.Hour,
	}
}

// NewGeneratorWithSources creates a generator over an explicit source set.
// Used by tests and by deployments that restrict which signals are read.
func NewGeneratorWithSources(sources ...SignalSource) *Generator {
	g := NewGenerator()
	g.sources = sources
	return g
}

// MachineID returns the short per-license machine identifier: SHA-256 over
// architecture, processor, hostname and MAC-derived UUID, truncated to 16
// hex characters.
func (g *Generator) MachineID() string {
	hostname := normalizedHostname()
	parts := []string{
		runtime.GOARCH,
		processorName(),
		hostname,
		macDerivedUUID(hostname),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "")))
	return hex.EncodeToString(sum[:])[:MachineIDLength]
}

// FullFingerprint returns the 64-hex-char enhanced fingerprint over every
// signal the sources can produce. Individual source failures are skipped;
// only a total failure to gather any signal is an error.
func (g *Generator) FullFingerprint() (string, error) {
	g.cacheMutex.RLock()
	if g.cachedFull != "" && time.Now().Before(g.cacheExpiry) {
		fp := g.cachedFull
		g.cacheMutex.RUnlock()
		return fp, nil
	}
	g.cacheMutex.RUnlock()

	// Sources run concurrently so the slow ones time out in parallel.
	// Results keep the configured source order to make the digest stable.
	start := time.Now()
	results := make([]string, len(g.sources))
	var eg errgroup.Group
	for i, src := range g.sources {
		i, src := i, src
		eg.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), g.sourceTimeout)
			defer cancel()
			value, ok := collectWithDeadline(ctx, src)
			if !ok || value == "" {
				slog.Debug("fingerprint signal unavailable", slog.String("source", src.Name()))
				return nil
			}
			results[i] = value
			return nil
		})
	}
	eg.Wait()

	var signals []string
	for _, value := range results {
		if value != "" {
			signals = append(signals, value)
		}
	}
	if len(signals) == 0 {
		return "", licerrors.MachineBinding(nil, "failed to generate machine fingerprint: no signals collected")
	}

	sum := sha256.Sum256([]byte(strings.Join(signals, "|")))
	fingerprint := hex.EncodeToString(sum[:])

	g.cacheMutex.Lock()
	g.cachedFull = fingerprint
	g.cacheExpiry = time.Now().Add(g.cacheDuration)
	g.cacheMutex.Unlock()

	slog.Debug("machine fingerprint generated",
		slog.Int("signals", len(signals)),
		slog.Duration("duration", time.Since(start)),
	)
	return fingerprint, nil
}

// ClearCache discards the cached fingerprint.
func (g *Generator) ClearCache() {
	g.cacheMutex.Lock()
	defer g.cacheMutex.Unlock()
	g.cachedFull = ""
	g.cacheExpiry = time.Time{}
}

// collectWithDeadline runs a source in its own goroutine so that sources
// doing blocking reads still honor the timeout.
func collectWithDeadline(ctx context.Context, src SignalSource) (string, bool) {
	type result struct {
		value string
		ok    bool
	}
	ch := make(chan result, 1)
	go func() {
		v, ok := src.Collect(ctx)
		ch <- result{v, ok}
	}()
	select {
	case r := <-ch:
		return r.value, r.ok
	case <-ctx.Done():
		return "", false
	}
}

// Similarity returns the fraction of matching character positions between
// two fingerprints of equal length, or 0.0 when the lengths differ.
func Similarity(fp1, fp2 string) float64 {
	if len(fp1) == 0 || len(fp1) != len(fp2) {
		return 0.0
	}
	matches := 0
	for i := 0; i < len(fp1); i++ {
		if fp1[i] == fp2[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(fp1))
}

// ValidateBinding checks a license's stored fingerprint against the current
// one. A license without a fingerprint is unbound and always passes. An
// exact match passes; otherwise minor hardware drift (memory upgrade, OS
// patch) is tolerated up to BindingSimilarityThreshold.
func ValidateBinding(licenseFingerprint, currentFingerprint string) bool {
	if licenseFingerprint == "" {
		return true
	}
	if licenseFingerprint == currentFingerprint {
		return true
	}
	return Similarity(licenseFingerprint, currentFingerprint) >= BindingSimilarityThreshold
}

func normalizedHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return strings.ToLower(strings.TrimSpace(hostname))
}

// processorName returns a best-effort CPU descriptor.
func processorName() string {
	switch runtime.GOOS {
	case "windows":
		if id := os.Getenv("PROCESSOR_IDENTIFIER"); id != "" {
			return id
		}
	case "linux":
		if model := linuxCPUModel(); model != "" {
			return model
		}
	}
	return fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
}

func linuxCPUModel() string {
	data, err := os.ReadFile("/proc/cpuinfo")
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "model name") {
			if _, value, found := strings.Cut(line, ":"); found {
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}

// macDerivedUUID returns the primary MAC address, falling back to a UUIDv5
// derived from the hostname when no usable interface exists.
func macDerivedUUID(hostname string) string {
	if mac := primaryMAC(); mac != "" {
		return mac
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(hostname)).String()
}

func primaryMAC() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	// Prefer up, non-loopback interfaces.
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac
		}
	}
	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac
		}
	}
	return ""
}

// osSignal reports OS name, architecture and kernel release.
type osSignal struct{}

func (osSignal) Name() string { return "os" }

func (osSignal) Collect(ctx context.Context) (string, bool) {
	parts := []string{runtime.GOOS, runtime.GOARCH}
	if release, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
		parts = append(parts, strings.TrimSpace(string(release)))
	}
	return strings.Join(parts, " "), true
}

// macSignal reports the MAC addresses of all hardware interfaces.
type macSignal struct{}

func (macSignal) Name() string { return "mac" }

func (macSignal) Collect(ctx context.Context) (string, bool) {
	interfaces, err := net.Interfaces()
	if err != nil {
		// Hostname-derived UUID keeps the signal stable when interface
		// enumeration is unavailable.
		return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(normalizedHostname())).String(), true
	}
	var macs []string
	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" {
			macs = append(macs, mac)
		}
	}
	if len(macs) == 0 {
		return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(normalizedHostname())).String(), true
	}
	return strings.Join(macs, ","), true
}

// cpuSignal reports logical CPU count and the processor model string.
type cpuSignal struct{}

func (cpuSignal) Name() string { return "cpu" }

func (cpuSignal) Collect(ctx context.Context) (string, bool) {
	return strconv.Itoa(runtime.NumCPU()) + " " + processorName(), true
}

// memorySignal reports total physical memory where the platform exposes it.
type memorySignal struct{}

func (memorySignal) Name() string { return "memory" }

func (memorySignal) Collect(ctx context.Context) (string, bool) {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "MemTotal:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "MemTotal:")), true
		}
	}
	return "", false
}

// diskSignal reports block device names and sizes where exposed.
type diskSignal struct{}

func (diskSignal) Name() string { return "disk" }

func (diskSignal) Collect(ctx context.Context) (string, bool) {
	data, err := os.ReadFile("/proc/partitions")
	if err != nil {
		return "", false
	}
	var devices []string
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		// major minor blocks name
		if len(fields) == 4 && fields[0] != "major" {
			devices = append(devices, fields[3]+":"+fields[2])
		}
	}
	if len(devices) == 0 {
		return "", false
	}
	return strings.Join(devices, ","), true
}

// networkSignal reports the hostname and its resolved addresses.
type networkSignal struct{}

func (networkSignal) Name() string { return "network" }

func (networkSignal) Collect(ctx context.Context) (string, bool) {
	hostname := normalizedHostname()
	parts := []string{hostname}
	if addrs, err := net.DefaultResolver.LookupIPAddr(ctx, hostname); err == nil {
		for _, addr := range addrs {
			parts = append(parts, addr.String())
		}
	}
	return strings.Join(parts, ","), true
}
