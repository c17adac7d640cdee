package randstorm

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
)

// BrowserFingerprint is the browser environment a wallet generator ran in,
// pinned to a candidate generation timestamp. It is an immutable value:
// created once per candidate, consumed by exactly one engine invocation.
type BrowserFingerprint struct {
	TimestampMS    uint64
	ScreenWidth    uint32
	ScreenHeight   uint32
	ColorDepth     uint8
	TimezoneOffset int16 // minutes from UTC
	Language       string
	Platform       string
	UserAgent      string
}

// ID returns a short identifier used in logs and findings.
func (f *BrowserFingerprint) ID() string {
	return fmt.Sprintf("%d_%s_%dx%d", f.TimestampMS, f.Platform, f.ScreenWidth, f.ScreenHeight)
}

// BrowserConfig is a prioritized prior over fingerprints: one plausible
// browser environment from the 2011-2015 era, ranked by estimated market
// share so the scan visits likely environments first.
type BrowserConfig struct {
	Priority            uint32
	UserAgent           string
	ScreenWidth         uint32
	ScreenHeight        uint32
	ColorDepth          uint8
	TimezoneOffset      int16
	Language            string
	Platform            string
	MarketShareEstimate float64
	YearMin             uint16
	YearMax             uint16
}

// Fingerprint binds this config to a concrete timestamp.
func (c *BrowserConfig) Fingerprint(timestampMS uint64) BrowserFingerprint {
	return BrowserFingerprint{
		TimestampMS:    timestampMS,
		ScreenWidth:    c.ScreenWidth,
		ScreenHeight:   c.ScreenHeight,
		ColorDepth:     c.ColorDepth,
		TimezoneOffset: c.TimezoneOffset,
		Language:       c.Language,
		Platform:       c.Platform,
		UserAgent:      c.UserAgent,
	}
}

// Phase is a priority tier of browser configurations. Lower phases cover the
// highest-confidence subset of the priors.
type Phase int

const (
	// PhaseOne covers the top 100 configurations by market share.
	PhaseOne Phase = iota + 1
	// PhaseTwo covers the top 500.
	PhaseTwo
	// PhaseThree covers every known configuration.
	PhaseThree
)

func (p Phase) String() string {
	switch p {
	case PhaseOne:
		return "one"
	case PhaseTwo:
		return "two"
	case PhaseThree:
		return "three"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ParsePhase parses a phase name or number.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "1", "one":
		return PhaseOne, nil
	case "2", "two":
		return PhaseTwo, nil
	case "3", "three":
		return PhaseThree, nil
	default:
		return PhaseOne, &ConfigError{Field: "phase", Reason: fmt.Sprintf("unknown phase %q", s)}
	}
}

// limit returns the maximum config count for the phase.
func (p Phase) limit() int {
	switch p {
	case PhaseOne:
		return 100
	case PhaseTwo:
		return 500
	default:
		return int(^uint(0) >> 1)
	}
}

// FingerprintDB holds browser configuration priors sorted by market share
// descending. The full priors dataset is curated externally; the embedded
// table covers the highest-confidence environments so the library works
// without any data files.
type FingerprintDB struct {
	configs []BrowserConfig
}

// NewFingerprintDB builds a database from explicit configs, sorting them by
// market share descending.
func NewFingerprintDB(configs []BrowserConfig) *FingerprintDB {
	sorted := make([]BrowserConfig, len(configs))
	copy(sorted, configs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MarketShareEstimate > sorted[j].MarketShareEstimate
	})
	return &FingerprintDB{configs: sorted}
}

// DefaultFingerprintDB returns the embedded priors.
func DefaultFingerprintDB() *FingerprintDB {
	return NewFingerprintDB(defaultBrowserConfigs())
}

// LoadFingerprintDB reads browser configs from a CSV file with the column
// layout priority,user_agent,screen_width,screen_height,color_depth,
// timezone_offset,language,platform,market_share_estimate,year_min,year_max.
// A header row is skipped if present.
func LoadFingerprintDB(path string) (*FingerprintDB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("randstorm: open fingerprint priors: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 11

	var configs []BrowserConfig
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("randstorm: parse fingerprint priors: %w", err)
		}
		line++
		if line == 1 && rec[0] == "priority" {
			continue
		}
		cfg, err := parseConfigRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("randstorm: fingerprint priors line %d: %w", line, err)
		}
		configs = append(configs, cfg)
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("randstorm: fingerprint priors %q contained no configs", path)
	}
	return NewFingerprintDB(configs), nil
}

func parseConfigRecord(rec []string) (BrowserConfig, error) {
	var cfg BrowserConfig
	prio, err := strconv.ParseUint(rec[0], 10, 32)
	if err != nil {
		return cfg, fmt.Errorf("priority: %w", err)
	}
	w, err := strconv.ParseUint(rec[2], 10, 32)
	if err != nil {
		return cfg, fmt.Errorf("screen_width: %w", err)
	}
	h, err := strconv.ParseUint(rec[3], 10, 32)
	if err != nil {
		return cfg, fmt.Errorf("screen_height: %w", err)
	}
	depth, err := strconv.ParseUint(rec[4], 10, 8)
	if err != nil {
		return cfg, fmt.Errorf("color_depth: %w", err)
	}
	tz, err := strconv.ParseInt(rec[5], 10, 16)
	if err != nil {
		return cfg, fmt.Errorf("timezone_offset: %w", err)
	}
	share, err := strconv.ParseFloat(rec[8], 64)
	if err != nil {
		return cfg, fmt.Errorf("market_share_estimate: %w", err)
	}
	ymin, err := strconv.ParseUint(rec[9], 10, 16)
	if err != nil {
		return cfg, fmt.Errorf("year_min: %w", err)
	}
	ymax, err := strconv.ParseUint(rec[10], 10, 16)
	if err != nil {
		return cfg, fmt.Errorf("year_max: %w", err)
	}
	return BrowserConfig{
		Priority:            uint32(prio),
		UserAgent:           rec[1],
		ScreenWidth:         uint32(w),
		ScreenHeight:        uint32(h),
		ColorDepth:          uint8(depth),
		TimezoneOffset:      int16(tz),
		Language:            rec[6],
		Platform:            rec[7],
		MarketShareEstimate: share,
		YearMin:             uint16(ymin),
		YearMax:             uint16(ymax),
	}, nil
}

// ConfigsForPhase returns the configs covered by the given phase, highest
// market share first.
func (db *FingerprintDB) ConfigsForPhase(phase Phase) []BrowserConfig {
	n := phase.limit()
	if n > len(db.configs) {
		n = len(db.configs)
	}
	return db.configs[:n]
}

// Len returns the total number of configurations.
func (db *FingerprintDB) Len() int { return len(db.configs) }

// CumulativeMarketShare sums the market share of the top n configs.
func (db *FingerprintDB) CumulativeMarketShare(n int) float64 {
	if n > len(db.configs) {
		n = len(db.configs)
	}
	var total float64
	for _, c := range db.configs[:n] {
		total += c.MarketShareEstimate
	}
	return total
}

// defaultBrowserConfigs is the embedded high-confidence subset of the priors:
// the dominant desktop environments observed in 2011-2015 traffic data.
func defaultBrowserConfigs() []BrowserConfig {
	return []BrowserConfig{
		{1, "Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/31.0.1650.63 Safari/537.36", 1366, 768, 24, -300, "en-US", "Win32", 0.082, 2013, 2015},
		{2, "Mozilla/5.0 (Windows NT 6.1) AppleWebKit/537.1 (KHTML, like Gecko) Chrome/21.0.1180.89 Safari/537.1", 1366, 768, 24, -300, "en-US", "Win32", 0.071, 2012, 2014},
		{3, "Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/535.11 (KHTML, like Gecko) Chrome/17.0.963.79 Safari/535.11", 1280, 800, 24, -300, "en-US", "Win32", 0.064, 2011, 2013},
		{4, "Mozilla/5.0 (Windows NT 6.1; WOW64; rv:25.0) Gecko/20100101 Firefox/25.0", 1366, 768, 24, -360, "en-US", "Win32", 0.058, 2013, 2015},
		{5, "Mozilla/5.0 (Windows NT 6.1; rv:17.0) Gecko/20100101 Firefox/17.0", 1280, 1024, 24, 60, "de", "Win32", 0.051, 2012, 2014},
		{6, "Mozilla/5.0 (compatible; MSIE 9.0; Windows NT 6.1; WOW64; Trident/5.0)", 1366, 768, 32, -300, "en-US", "Win32", 0.049, 2011, 2014},
		{7, "Mozilla/5.0 (compatible; MSIE 10.0; Windows NT 6.1; WOW64; Trident/6.0)", 1600, 900, 32, 0, "en-GB", "Win32", 0.043, 2012, 2015},
		{8, "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_8_2) AppleWebKit/537.17 (KHTML, like Gecko) Chrome/24.0.1309.0 Safari/537.17", 1440, 900, 24, -480, "en-US", "MacIntel", 0.038, 2012, 2014},
		{9, "Mozilla/5.0 (Windows NT 5.1) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/28.0.1500.95 Safari/537.36", 1024, 768, 24, 180, "ru", "Win32", 0.036, 2012, 2015},
		{10, "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_7_5) AppleWebKit/536.26.17 (KHTML, like Gecko) Version/6.0.2 Safari/536.26.17", 1440, 900, 24, -480, "en-US", "MacIntel", 0.031, 2011, 2013},
		{11, "Mozilla/5.0 (Windows NT 6.2; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/33.0.1750.154 Safari/537.36", 1920, 1080, 24, -300, "en-US", "Win32", 0.029, 2013, 2015},
		{12, "Mozilla/5.0 (Windows NT 6.1; WOW64; rv:12.0) Gecko/20100101 Firefox/12.0", 1366, 768, 24, -180, "pt-BR", "Win32", 0.027, 2011, 2013},
		{13, "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/30.0.1599.101 Safari/537.36", 1920, 1080, 24, 60, "en-US", "Linux x86_64", 0.022, 2012, 2015},
		{14, "Mozilla/5.0 (Windows; U; Windows NT 6.1; en-US) AppleWebKit/533.20.25 (KHTML, like Gecko) Version/5.0.4 Safari/533.20.27", 1280, 800, 32, -300, "en-US", "Win32", 0.019, 2011, 2012},
		{15, "Mozilla/5.0 (compatible; MSIE 8.0; Windows NT 6.1; WOW64; Trident/4.0)", 1280, 1024, 32, -360, "en-US", "Win32", 0.018, 2011, 2013},
		{16, "Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/534.57.2 (KHTML, like Gecko) Version/5.1.7 Safari/534.57.2", 1366, 768, 32, -300, "en-US", "Win32", 0.016, 2011, 2012},
		{17, "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.6; rv:22.0) Gecko/20100101 Firefox/22.0", 1280, 800, 24, 0, "en-GB", "MacIntel", 0.015, 2012, 2014},
		{18, "Mozilla/5.0 (Windows NT 5.1; rv:11.0) Gecko/20100101 Firefox/11.0", 1024, 768, 24, 120, "tr", "Win32", 0.014, 2011, 2013},
		{19, "Opera/9.80 (Windows NT 6.1; WOW64) Presto/2.12.388 Version/12.14", 1366, 768, 24, 240, "ru", "Win32", 0.012, 2012, 2014},
		{20, "Mozilla/5.0 (Windows NT 6.3; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/37.0.2062.103 Safari/537.36", 1920, 1080, 24, -240, "en-US", "Win32", 0.011, 2014, 2015},
		{21, "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_9_3) AppleWebKit/537.75.14 (KHTML, like Gecko) Version/7.0.3 Safari/537.75.14", 2560, 1440, 24, -420, "en-US", "MacIntel", 0.010, 2013, 2015},
		{22, "Mozilla/5.0 (compatible; MSIE 11.0; Windows NT 6.1; WOW64; Trident/7.0)", 1366, 768, 32, 540, "ja", "Win32", 0.010, 2013, 2015},
		{23, "Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:24.0) Gecko/20100101 Firefox/24.0", 1366, 768, 24, 330, "en-IN", "Linux x86_64", 0.009, 2013, 2015},
		{24, "Mozilla/5.0 (Windows NT 6.0) AppleWebKit/535.1 (KHTML, like Gecko) Chrome/14.0.835.202 Safari/535.1", 1280, 720, 24, -300, "en-US", "Win32", 0.008, 2011, 2012},
	}
}
