// Package normalization detects the vendor format of a CDR export and maps
// its rows onto the canonical record schema.
package normalization

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/cdr"
	"github.com/lvonguyen/cdrforge/internal/observability"
	"github.com/lvonguyen/cdrforge/internal/schema"
)

// MinDetectionScore is the lowest required-field coverage accepted as a
// format match.
const MinDetectionScore = 0.5

// Detection is the outcome of scoring a header row against a profile.
type Detection struct {
	Profile *schema.VendorProfile `json:"-"`
	Vendor  string                `json:"vendor"`

	// Score is the fraction of required fields resolved.
	Score float64 `json:"score"`

	// Confidence weights the resolved required fields by profile weight.
	Confidence float64 `json:"confidence"`

	// ExactMatches counts headers that equal an alias literally
	// (case-insensitive) rather than after folding.
	ExactMatches int `json:"exact_matches"`

	// Columns maps each resolved field to its column index.
	Columns map[schema.Field]int `json:"columns"`

	Missing   []schema.Field `json:"missing,omitempty"`
	Unmatched []string       `json:"unmatched,omitempty"`

	// SampleTimestamps counts sample rows whose start time parses.
	SampleTimestamps int `json:"sample_timestamps"`
	SampleRows       int `json:"sample_rows"`
}

// Has reports whether a field resolved to a column.
func (d *Detection) Has(f schema.Field) bool {
	_, ok := d.Columns[f]
	return ok
}

func (d *Detection) hasAny(fields []schema.Field) bool {
	for _, f := range fields {
		if d.Has(f) {
			return true
		}
	}
	return false
}

// Detector scores header rows against an immutable profile set.
type Detector struct {
	profiles *schema.ProfileSet
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewDetector creates a new detector
func NewDetector(profiles *schema.ProfileSet, logger *zap.Logger, metrics *observability.Metrics) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{profiles: profiles, logger: logger, metrics: metrics}
}

// Profiles returns the profile set the detector scores against.
func (d *Detector) Profiles() *schema.ProfileSet {
	return d.profiles
}

// Detect picks the best profile for a header row. The winner has the highest
// score, then the most exact matches, then the earliest declaration. It fails
// with *cdr.UnknownFormatError when the winner scores below
// MinDetectionScore or resolves no identity or no timing field.
func (d *Detector) Detect(headers []string, sample [][]string) (*Detection, error) {
	var best *Detection
	for i := 0; i < d.profiles.Len(); i++ {
		det := resolve(d.profiles.At(i), headers)
		if best == nil ||
			det.Score > best.Score ||
			(det.Score == best.Score && det.ExactMatches > best.ExactMatches) {
			best = det
		}
	}

	if best == nil || best.Score < MinDetectionScore ||
		!best.hasAny(schema.IdentityFields) || !best.hasAny(schema.TimingFields) {
		err := unknownFormat(headers, best)
		d.metrics.ObserveDetection("", false)
		d.logger.Warn("Unknown CDR format",
			zap.Strings("headers", headers),
			zap.String("best_match", err.BestMatch),
			zap.Float64("best_score", err.BestScore),
		)
		return nil, err
	}

	best.checkSample(sample)
	d.metrics.ObserveDetection(best.Vendor, true)
	d.logger.Debug("Detected CDR format",
		zap.String("vendor", best.Vendor),
		zap.Float64("score", best.Score),
		zap.Float64("confidence", best.Confidence),
		zap.Int("exact_matches", best.ExactMatches),
	)
	return best, nil
}

// DetectWithMapping bypasses scoring with a caller-supplied field -> header
// mapping. base names a profile whose date layouts, time zone and direction
// codes the mapping inherits; it may be empty.
func (d *Detector) DetectWithMapping(headers []string, mapping map[schema.Field]string, base string) (*Detection, error) {
	var baseProfile *schema.VendorProfile
	if base != "" {
		p, ok := d.profiles.Get(base)
		if !ok {
			return nil, fmt.Errorf("manual mapping: unknown base profile %q", base)
		}
		baseProfile = p
	}

	p, err := schema.ManualProfile(mapping, baseProfile)
	if err != nil {
		return nil, err
	}
	det := resolve(&p, headers)
	if len(det.Missing) > 0 {
		return nil, &cdr.UnknownFormatError{
			Headers:   headers,
			BestMatch: schema.ManualProfileName,
			BestScore: det.Score,
		}
	}
	if !det.hasAny(schema.IdentityFields) || !det.hasAny(schema.TimingFields) {
		return nil, fmt.Errorf("manual mapping must cover a party number and a start time")
	}
	d.metrics.ObserveDetection(schema.ManualProfileName, true)
	return det, nil
}

// LooksLikeHeader reports whether any profile resolves both an identity and
// a timing field from row. Readers use it to skip banner lines.
func (d *Detector) LooksLikeHeader(row []string) bool {
	for i := 0; i < d.profiles.Len(); i++ {
		det := resolve(d.profiles.At(i), row)
		if det.hasAny(schema.IdentityFields) && det.hasAny(schema.TimingFields) {
			return true
		}
	}
	return false
}

// resolve maps headers onto the profile's fields. Fields are visited in
// canonical order and each claims the first unclaimed header equal to one
// of its aliases, so a header never serves two fields.
func resolve(p *schema.VendorProfile, headers []string) *Detection {
	folded := make([]string, len(headers))
	for i, h := range headers {
		folded[i] = schema.FoldHeader(h)
	}

	det := &Detection{
		Profile: p,
		Vendor:  p.Name,
		Columns: make(map[schema.Field]int),
	}
	claimed := make([]bool, len(headers))

	for _, f := range schema.Fields {
		for _, alias := range p.Aliases[f] {
			fa := schema.FoldHeader(alias)
			col := -1
			for i := range folded {
				if !claimed[i] && folded[i] == fa {
					col = i
					break
				}
			}
			if col < 0 {
				continue
			}
			claimed[col] = true
			det.Columns[f] = col
			if strings.EqualFold(strings.TrimSpace(headers[col]), strings.TrimSpace(alias)) {
				det.ExactMatches++
			}
			break
		}
	}

	var resolved, weightTotal, weightResolved float64
	for _, f := range p.RequiredFields {
		w := p.Weight(f)
		weightTotal += w
		if det.Has(f) {
			resolved++
			weightResolved += w
		} else {
			det.Missing = append(det.Missing, f)
		}
	}
	if n := len(p.RequiredFields); n > 0 {
		det.Score = resolved / float64(n)
	}
	if weightTotal > 0 {
		det.Confidence = weightResolved / weightTotal
	}

	for i, h := range headers {
		if !claimed[i] && strings.TrimSpace(h) != "" {
			det.Unmatched = append(det.Unmatched, h)
		}
	}
	return det
}

// checkSample counts sample rows whose start time parses with the profile's
// layouts. It is informational and never changes the choice of profile.
func (det *Detection) checkSample(sample [][]string) {
	det.SampleRows = len(sample)
	for _, row := range sample {
		if _, _, err := det.startTime(row); err == nil {
			det.SampleTimestamps++
		}
	}
}

func unknownFormat(headers []string, best *Detection) *cdr.UnknownFormatError {
	err := &cdr.UnknownFormatError{Headers: make([]string, len(headers))}
	for i, h := range headers {
		err.Headers[i] = schema.FoldHeader(h)
	}
	if best != nil {
		err.BestMatch = best.Vendor
		err.BestScore = best.Score
	}
	return err
}
