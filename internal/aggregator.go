package internal

import (
	"context"
	"encoding/csv"
	"io"
	"math"
	"net/netip"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// sorted map keys, so equal aggregates always encode the same way
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LineWriter receives finished output lines, without the newline.
type LineWriter interface {
	WriteLine(line string) error
}

var documentation4 = []netip.Prefix{
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
}

var broadcast4 = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// Admissible reports whether ip is eligible for output. IPv4 addresses
// that are private, loopback, broadcast, multicast, unspecified,
// documentation or link-local are not; IPv6 addresses that are
// unspecified, loopback or multicast are not. IPv4-mapped IPv6
// addresses are judged by the IPv6 rules.
func Admissible(ip netip.Addr) bool {
	if ip.Is4() {
		if ip.IsPrivate() || ip.IsLoopback() || ip == broadcast4 || ip.IsMulticast() ||
			ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
			return false
		}
		for _, p := range documentation4 {
			if p.Contains(ip) {
				return false
			}
		}
		return true
	}
	if ip.Is4In6() {
		// netip would unmap these; none of them is ::, ::1 or in ff00::/8
		return true
	}
	return !(ip.IsUnspecified() || ip.IsLoopback() || ip.IsMulticast())
}

// ParseIP parses a textual IPv4 or IPv6 address. Zoned addresses are
// rejected.
func ParseIP(s string) (netip.Addr, error) {
	ip, err := netip.ParseAddr(s)
	if err != nil || ip.Zone() != "" {
		return netip.Addr{}, errors.Wrapf(ErrUnparsableIP, "%q", s)
	}
	return ip, nil
}

// Aggregator merges runs of records sharing an ip into one line. It
// only remembers the current ip, so it needs all records of an ip to be
// adjacent; a second run of the same ip produces a second line.
type Aggregator struct {
	w      LineWriter
	stats  *Stats
	active bool
	ip     netip.Addr
	kinds  map[string]map[string]uint64
}

func NewAggregator(w LineWriter, stats *Stats) *Aggregator {
	return &Aggregator{
		w:     w,
		stats: stats,
		kinds: make(map[string]map[string]uint64),
	}
}

// Add accounts one record. Inadmissible addresses are dropped without
// ending the current run.
func (a *Aggregator) Add(rec Record) error {
	ip, err := ParseIP(rec.IP)
	if err != nil {
		return err
	}
	if !Admissible(ip) {
		a.stats.Dropped.Inc()
		return nil
	}
	if !a.active || ip != a.ip {
		if err := a.flush(); err != nil {
			return err
		}
		a.ip = ip
		a.active = true
	}

	dates, ok := a.kinds[rec.Kind]
	if !ok {
		dates = make(map[string]uint64)
		a.kinds[rec.Kind] = dates
	}
	if dates[rec.Date] > math.MaxUint64-rec.Count {
		return errors.Wrapf(ErrUnparsableRecord, "count of %s %s %s overflows", rec.IP, rec.Kind, rec.Date)
	}
	dates[rec.Date] += rec.Count
	return nil
}

// Finish emits the aggregate of the last ip, if any.
func (a *Aggregator) Finish() error {
	return a.flush()
}

func (a *Aggregator) flush() error {
	if !a.active {
		return nil
	}
	body, err := json.MarshalToString(a.kinds)
	if err != nil {
		return err
	}
	line := a.ip.String() + "\t" + body

	a.active = false
	a.kinds = make(map[string]map[string]uint64)
	a.stats.Emitted.Inc()
	return a.w.WriteLine(line)
}

// Aggregate reads one ip-sorted partition and writes a line per run of
// equal ips to w.
func Aggregate(ctx context.Context, r io.Reader, w LineWriter, stats *Stats) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	agg := NewAggregator(w, stats)
	for n := 1; ; n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrapf(ErrUnparsableRecord, "%v", err)
		}
		rec, err := ParseRecord(fields)
		if err != nil {
			return errors.Wrapf(err, "sorted record %d", n)
		}
		if err := agg.Add(rec); err != nil {
			return errors.Wrapf(err, "sorted record %d", n)
		}
	}
	return agg.Finish()
}
