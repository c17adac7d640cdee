package randstorm

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/willf/bloom"
)

// bloomFalsePositiveRate sizes the prefilter; exact matches are confirmed
// against the map afterward, so false positives only cost a lookup.
const bloomFalsePositiveRate = 1e-6

// TargetSet holds the hash160 payloads of the addresses under investigation.
// A Bloom prefilter screens the hot path; a map confirms exact matches and
// recovers the original address string for reporting.
type TargetSet struct {
	filter *bloom.BloomFilter
	byHash map[[20]byte]string
}

// NewTargetSet parses target address strings. Randstorm-era wallets are
// P2PKH; P2SH is accepted for completeness. Other address types are
// rejected since no vulnerable generator could have produced them.
func NewTargetSet(addresses []string) (*TargetSet, error) {
	if len(addresses) == 0 {
		return nil, fmt.Errorf("randstorm: no target addresses supplied")
	}

	t := &TargetSet{
		filter: bloom.NewWithEstimates(uint(len(addresses)), bloomFalsePositiveRate),
		byHash: make(map[[20]byte]string, len(addresses)),
	}

	for _, s := range addresses {
		addr, err := btcutil.DecodeAddress(s, &chaincfg.MainNetParams)
		if err != nil {
			return nil, fmt.Errorf("randstorm: invalid target address %q: %w", s, err)
		}
		var h [20]byte
		switch a := addr.(type) {
		case *btcutil.AddressPubKeyHash:
			copy(h[:], a.Hash160()[:])
		case *btcutil.AddressScriptHash:
			copy(h[:], a.Hash160()[:])
		default:
			return nil, fmt.Errorf("randstorm: unsupported target address type for %q", s)
		}
		t.filter.Add(h[:])
		t.byHash[h] = s
	}
	return t, nil
}

// LoadTargetSet reads one address per line from a file, skipping blanks and
// # comments.
func LoadTargetSet(path string) (*TargetSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("randstorm: open targets: %w", err)
	}
	defer f.Close()

	var addresses []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addresses = append(addresses, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("randstorm: read targets: %w", err)
	}
	return NewTargetSet(addresses)
}

// Match tests a derived hash against the target set. The returned address is
// the original string form of the matched target.
func (t *TargetSet) Match(h [20]byte) (string, bool) {
	if !t.filter.Test(h[:]) {
		return "", false
	}
	addr, ok := t.byHash[h]
	return addr, ok
}

// Len returns the number of targets.
func (t *TargetSet) Len() int { return len(t.byHash) }

// Addresses returns the target address strings, for logging.
func (t *TargetSet) Addresses() []string {
	out := make([]string, 0, len(t.byHash))
	for _, a := range t.byHash {
		out = append(out, a)
	}
	return out
}
