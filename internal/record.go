package internal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	farm "github.com/dgryski/go-farm"
	"github.com/pkg/errors"
)

// Record is one line of input: ip,date,count,kind.
type Record struct {
	IP    string
	Date  string
	Count uint64
	Kind  string
}

const recordFields = 4

// ParseRecord decodes the four csv fields of one line. A field may not
// span lines: partitions are sorted line by line.
func ParseRecord(fields []string) (Record, error) {
	if len(fields) != recordFields {
		return Record{}, errors.Wrapf(ErrUnparsableRecord, "expected %d fields, got %d", recordFields, len(fields))
	}
	for _, f := range fields {
		if strings.ContainsAny(f, "\r\n") {
			return Record{}, errors.Wrapf(ErrUnparsableRecord, "line break in field %q", f)
		}
	}
	count, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Record{}, errors.Wrapf(ErrUnparsableRecord, "bad count %q", fields[2])
	}
	return Record{
		IP:    fields[0],
		Date:  fields[1],
		Count: count,
		Kind:  fields[3],
	}, nil
}

// KeyFunc maps an ip to the partition it belongs to. It must be
// deterministic: the same ip always yields the same key.
type KeyFunc func(ip string) (string, error)

// first character, plus the second unless it is a separator
var prefixPattern = regexp.MustCompile(`^(.[^.:]?)`)

// PrefixKey keys an ip by its leading characters, which spreads
// addresses over a few hundred partitions.
func PrefixKey(ip string) (string, error) {
	m := prefixPattern.FindStringSubmatch(ip)
	if m == nil {
		return "", errors.Wrapf(ErrUnmatchedPartitionKey, "ip %q", ip)
	}
	return m[1], nil
}

// HashKey keys an ip by farm hash of the whole address modulo n.
func HashKey(n int) KeyFunc {
	return func(ip string) (string, error) {
		if ip == "" {
			return "", errors.Wrap(ErrUnmatchedPartitionKey, "empty ip")
		}
		return fmt.Sprintf("%04d", ihash(ip)%n), nil
	}
}

func ihash(key string) int {
	return int(farm.Hash32([]byte(key)) & 0x7fffffff)
}

// NewKeyFunc resolves a key function by its configured name.
func NewKeyFunc(name string, hashPartitions int) (KeyFunc, error) {
	switch name {
	case KeyPrefix:
		return PrefixKey, nil
	case KeyHash:
		if hashPartitions <= 0 {
			return nil, errors.Errorf("hash partitions must be positive, got %d", hashPartitions)
		}
		return HashKey(hashPartitions), nil
	}
	return nil, errors.Errorf("unknown partition key function %q", name)
}
