package randstorm

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// DerivedCandidate is one address hash produced from a candidate key, tagged
// with the derivation path that produced it.
type DerivedCandidate struct {
	Hash160 [20]byte
	Path    string
}

// Derivation path labels for the legacy (pre-BIP32) forms. 2011-era
// BitcoinJS serialized uncompressed public keys; compressed keys appear in
// later vulnerable forks, so both are checked.
const (
	PathDirectUncompressed = "direct/uncompressed"
	PathDirectCompressed   = "direct/compressed"
)

// hdAccountPaths are the account paths checked under CoverageAll, first
// external index each.
var hdAccountPaths = []struct {
	purpose uint32
	label   string
}{
	{44, "m/44'/0'/0'/0/0"},
	{49, "m/49'/0'/0'/0/0"},
	{84, "m/84'/0'/0'/0/0"},
}

// DeriveCandidates maps 32 candidate key bytes to the address hashes a
// vulnerable wallet could have presented. A nil return is a derivation miss
// (the bytes are not a valid secp256k1 scalar); misses are astronomically
// rare and silently skipped, never counted as findings or errors.
func DeriveCandidates(key [32]byte, coverage PathCoverage) []DerivedCandidate {
	var scalar btcec.ModNScalar
	if overflow := scalar.SetBytes(&key); overflow != 0 || scalar.IsZero() {
		return nil
	}

	_, pub := btcec.PrivKeyFromBytes(key[:])

	out := make([]DerivedCandidate, 0, 2)
	var h [20]byte
	copy(h[:], btcutil.Hash160(pub.SerializeUncompressed()))
	out = append(out, DerivedCandidate{Hash160: h, Path: PathDirectUncompressed})
	copy(h[:], btcutil.Hash160(pub.SerializeCompressed()))
	out = append(out, DerivedCandidate{Hash160: h, Path: PathDirectCompressed})

	if coverage == CoverageAll {
		out = append(out, deriveHDCandidates(key)...)
	}
	return out
}

// deriveHDCandidates treats the candidate bytes as a BIP32 seed and derives
// the first external index of each account path. Wallets that imported
// Randstorm-era entropy into HD software show up here.
func deriveHDCandidates(seed [32]byte) []DerivedCandidate {
	master, err := hdkeychain.NewMaster(seed[:], &chaincfg.MainNetParams)
	if err != nil {
		// Seed rejected by BIP32 (invalid master key); a derivation miss.
		return nil
	}

	out := make([]DerivedCandidate, 0, len(hdAccountPaths))
	for _, p := range hdAccountPaths {
		steps := []uint32{
			hdkeychain.HardenedKeyStart + p.purpose,
			hdkeychain.HardenedKeyStart + 0, // coin type: bitcoin
			hdkeychain.HardenedKeyStart + 0, // account 0
			0,                               // external chain
			0,                               // index 0
		}
		key := master
		ok := true
		for _, step := range steps {
			key, err = key.Derive(step)
			if err != nil {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		pub, err := key.ECPubKey()
		if err != nil {
			continue
		}
		var h [20]byte
		copy(h[:], btcutil.Hash160(pub.SerializeCompressed()))
		out = append(out, DerivedCandidate{Hash160: h, Path: p.label})
	}
	return out
}

// AddressFromHash160 renders a hash back to its mainnet P2PKH form for
// reporting.
func AddressFromHash160(h [20]byte) (string, error) {
	addr, err := btcutil.NewAddressPubKeyHash(h[:], &chaincfg.MainNetParams)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}

// ExportWIF encodes a recovered key in wallet import format so findings can
// be verified in standard tooling.
func ExportWIF(key [32]byte, compressed bool) (string, error) {
	priv, _ := btcec.PrivKeyFromBytes(key[:])
	wif, err := btcutil.NewWIF(priv, &chaincfg.MainNetParams, compressed)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}
