package randstorm

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Engine identifies one historical Math.random() implementation. The set is
// closed: engines are research-curated reconstructions, and every dispatch
// site switches exhaustively over these values.
type Engine int

const (
	// EngineV8Mwc1616 is the MWC1616 generator used by Chrome/V8 from roughly
	// Chrome 14 through Chrome 45.
	EngineV8Mwc1616 Engine = iota

	// EngineLcg48 is the Java-derived 48-bit LCG shared, bit-identically, by
	// Firefox SpiderMonkey (4-40) and IE Chakra (9-11) during 2011-2016.
	EngineLcg48

	// EngineSafariGameRand is the 31-bit "GameRand" LCG used by pre-2015
	// WebKit (WeakRandom.h).
	EngineSafariGameRand

	// EngineSafariWinCrt is the MSVC CRT rand() construction used by Safari
	// for Windows 4.x-5.x (2009-2012).
	EngineSafariWinCrt
)

// AllEngines lists every reconstructed engine in registry order.
var AllEngines = []Engine{EngineV8Mwc1616, EngineLcg48, EngineSafariGameRand, EngineSafariWinCrt}

func (e Engine) String() string {
	switch e {
	case EngineV8Mwc1616:
		return "v8_mwc1616"
	case EngineLcg48:
		return "lcg48"
	case EngineSafariGameRand:
		return "safari_gamerand"
	case EngineSafariWinCrt:
		return "safari_win_crt"
	default:
		return fmt.Sprintf("Engine(%d)", int(e))
	}
}

// ParseEngine resolves an engine from its common names.
func ParseEngine(name string) (Engine, error) {
	switch name {
	case "v8", "chrome", "v8_mwc1616", "mwc1616":
		return EngineV8Mwc1616, nil
	case "lcg48", "firefox", "spidermonkey", "ie", "chakra", "java":
		return EngineLcg48, nil
	case "safari", "gamerand", "safari_gamerand", "webkit":
		return EngineSafariGameRand, nil
	case "safari_win", "safari_win_crt", "msvc", "crt":
		return EngineSafariWinCrt, nil
	default:
		return EngineV8Mwc1616, &ConfigError{Field: "engine", Reason: fmt.Sprintf("unknown engine %q", name)}
	}
}

// Engine constants. All reconstructed arithmetic is integer and wrapping;
// floating point never touches key material.
const (
	mwcMult1 = 18000
	mwcMult2 = 30903

	lcg48Mult uint64 = 0x5DEECE66D
	lcg48Add  uint64 = 0xB
	lcg48Mask uint64 = (1 << 48) - 1

	gameRandMult uint32 = 1103515245
	gameRandAdd  uint32 = 12345

	msvcMult uint32 = 214013
	msvcAdd  uint32 = 2531011
)

// PrngState is the register set of a seeded engine. The layout is fixed and
// shared verbatim with GPU backends: register use per engine is
//
//	EngineV8Mwc1616:     S1, S2 are the two MWC1616 registers
//	EngineLcg48:         Seed48 holds the 48-bit LCG state
//	EngineSafariGameRand: S1 holds the 31-bit state
//	EngineSafariWinCrt:  S1 holds the 32-bit CRT state
//
// Identical byte layout on every backend is the load-bearing invariant for
// parity checking.
type PrngState struct {
	Engine Engine
	S1     uint32
	S2     uint32
	Seed48 uint64
}

// fingerprintHash hashes the non-timestamp fingerprint fields with SHA-256
// and returns the low 64 bits of the digest, little-endian. This seeding is
// a documented forensic approximation of unverified browser internals, not a
// guarantee; only the test-vector timestamp path is historically confirmed.
func fingerprintHash(fp *BrowserFingerprint) uint64 {
	h := sha256.New()
	h.Write([]byte(fp.UserAgent))

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], fp.ScreenWidth)
	h.Write(buf[:])
	binary.LittleEndian.PutUint32(buf[:], fp.ScreenHeight)
	h.Write(buf[:])

	h.Write([]byte{fp.ColorDepth})

	binary.LittleEndian.PutUint16(buf[:2], uint16(fp.TimezoneOffset))
	h.Write(buf[:2])

	h.Write([]byte(fp.Language))
	h.Write([]byte(fp.Platform))

	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum[:8])
}

// SeedFromFingerprint reconstructs engine state from a full browser
// fingerprint: the generation timestamp XORed with a hash of the remaining
// environment fields.
func (e Engine) SeedFromFingerprint(fp *BrowserFingerprint) PrngState {
	combined := fp.TimestampMS ^ fingerprintHash(fp)

	switch e {
	case EngineV8Mwc1616:
		// V8 splits the 64-bit seed across the two MWC registers,
		// high word first.
		return PrngState{
			Engine: e,
			S1:     uint32(combined >> 32),
			S2:     uint32(combined),
		}
	case EngineLcg48:
		return PrngState{
			Engine: e,
			Seed48: (combined ^ lcg48Mult) & lcg48Mask,
		}
	case EngineSafariGameRand:
		return PrngState{Engine: e, S1: uint32(combined)}
	case EngineSafariWinCrt:
		// MSVC srand takes a 32-bit unsigned int.
		return PrngState{Engine: e, S1: uint32(combined)}
	default:
		panic(fmt.Sprintf("randstorm: unknown engine %d", int(e)))
	}
}

// SeedFromTimestamp reconstructs engine state from the generation timestamp
// alone, the seeding the vulnerable BitcoinJS entropy path actually
// observed. This is the path the historical test vectors validate.
func (e Engine) SeedFromTimestamp(timestampMS uint64) PrngState {
	switch e {
	case EngineV8Mwc1616:
		// Date.getTime() fed Math.random()'s lazy init directly: low word
		// into s1, high word into s2.
		return PrngState{
			Engine: e,
			S1:     uint32(timestampMS),
			S2:     uint32(timestampMS >> 32),
		}
	case EngineLcg48:
		return PrngState{
			Engine: e,
			Seed48: (timestampMS ^ lcg48Mult) & lcg48Mask,
		}
	case EngineSafariGameRand:
		return PrngState{Engine: e, S1: uint32(timestampMS)}
	case EngineSafariWinCrt:
		return PrngState{Engine: e, S1: uint32(timestampMS)}
	default:
		panic(fmt.Sprintf("randstorm: unknown engine %d", int(e)))
	}
}

// NextU32 advances the state by one step and returns the engine's 32-bit
// output.
func (s *PrngState) NextU32() uint32 {
	switch s.Engine {
	case EngineV8Mwc1616:
		s.S1 = mwcMult1*(s.S1&0xFFFF) + (s.S1 >> 16)
		s.S2 = mwcMult2*(s.S2&0xFFFF) + (s.S2 >> 16)
		return (s.S1 << 16) + s.S2
	case EngineLcg48:
		s.Seed48 = (s.Seed48*lcg48Mult + lcg48Add) & lcg48Mask
		return uint32(s.Seed48 >> 16)
	case EngineSafariGameRand:
		s.S1 = (s.S1*gameRandMult + gameRandAdd) & 0x7FFFFFFF
		return s.S1
	case EngineSafariWinCrt:
		// Two chained 15-bit rand() draws combined into 30 bits, as the
		// WebKit Windows port did for Math.random().
		r1 := msvcRand(&s.S1)
		r2 := msvcRand(&s.S1)
		return (r1 << 15) | r2
	default:
		panic(fmt.Sprintf("randstorm: unknown engine %d", int(s.Engine)))
	}
}

// NextU16 advances the state and returns Math.floor(65536 * Math.random())
// for the engine, the draw shape the BitcoinJS entropy pool consumed.
func (s *PrngState) NextU16() uint16 {
	switch s.Engine {
	case EngineV8Mwc1616:
		s.S1 = mwcMult1*(s.S1&0xFFFF) + (s.S1 >> 16)
		s.S2 = mwcMult2*(s.S2&0xFFFF) + (s.S2 >> 16)
		// The historical engine combined the registers in double-width
		// arithmetic before scaling, so the carry out of bit 31 matters.
		return uint16(((uint64(s.S1) << 16) + uint64(s.S2)) >> 16)
	case EngineLcg48:
		s.Seed48 = (s.Seed48*lcg48Mult + lcg48Add) & lcg48Mask
		return uint16(s.Seed48 >> 16)
	case EngineSafariGameRand:
		s.S1 = (s.S1*gameRandMult + gameRandAdd) & 0x7FFFFFFF
		return uint16(s.S1 >> 15)
	case EngineSafariWinCrt:
		r1 := msvcRand(&s.S1)
		r2 := msvcRand(&s.S1)
		return uint16(((r1 << 15) | r2) >> 14)
	default:
		panic(fmt.Sprintf("randstorm: unknown engine %d", int(s.Engine)))
	}
}

// GenerateBytes produces count raw bytes from the state. V8, the 48-bit LCG
// and GameRand emit successive 32-bit outputs big-endian; the MSVC CRT
// engine emits one rand() low byte per output byte, matching the
// entropy-pool filling observed in the Safari Windows port.
func (s *PrngState) GenerateBytes(count int) []byte {
	out := make([]byte, 0, count)
	switch s.Engine {
	case EngineSafariWinCrt:
		for len(out) < count {
			out = append(out, byte(msvcRand(&s.S1)))
		}
	default:
		var buf [4]byte
		for len(out) < count {
			binary.BigEndian.PutUint32(buf[:], s.NextU32())
			n := count - len(out)
			if n > 4 {
				n = 4
			}
			out = append(out, buf[:n]...)
		}
	}
	return out
}

// msvcRand is MSVC CRT rand(): advance the LCG, output bits 16-30.
func msvcRand(state *uint32) uint32 {
	*state = *state*msvcMult + msvcAdd
	return (*state >> 16) & 0x7FFF
}
