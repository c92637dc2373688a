package schema

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManualProfileName names profiles synthesized from a caller mapping.
const ManualProfileName = "manual"

// ProfileSet is the immutable, ordered collection of vendor profiles. It is
// built once at start-up and shared read-only.
type ProfileSet struct {
	profiles []VendorProfile
	byName   map[string]int
}

// NewProfileSet validates the profiles and freezes their declaration order.
func NewProfileSet(profiles ...VendorProfile) (*ProfileSet, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no vendor profiles")
	}
	ps := &ProfileSet{
		profiles: make([]VendorProfile, 0, len(profiles)),
		byName:   make(map[string]int, len(profiles)),
	}
	for _, p := range profiles {
		p := cloneProfile(p)
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := ps.byName[p.Name]; dup {
			return nil, fmt.Errorf("duplicate vendor profile %q", p.Name)
		}
		ps.byName[p.Name] = len(ps.profiles)
		ps.profiles = append(ps.profiles, p)
	}
	return ps, nil
}

// Len returns the number of profiles.
func (ps *ProfileSet) Len() int { return len(ps.profiles) }

// At returns the i-th profile in declaration order.
func (ps *ProfileSet) At(i int) *VendorProfile { return &ps.profiles[i] }

// Get looks a profile up by name.
func (ps *ProfileSet) Get(name string) (*VendorProfile, bool) {
	i, ok := ps.byName[name]
	if !ok {
		return nil, false
	}
	return &ps.profiles[i], true
}

// Names returns the profile names in declaration order.
func (ps *ProfileSet) Names() []string {
	out := make([]string, len(ps.profiles))
	for i := range ps.profiles {
		out[i] = ps.profiles[i].Name
	}
	return out
}

type profileFile struct {
	Profiles []VendorProfile `yaml:"profiles"`
}

// ParseProfiles decodes a YAML profile table.
func ParseProfiles(data []byte) (*ProfileSet, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse vendor profiles: %w", err)
	}
	return NewProfileSet(f.Profiles...)
}

// LoadProfiles reads a YAML profile table from disk. An empty path yields the
// built-in profiles.
func LoadProfiles(path string) (*ProfileSet, error) {
	if path == "" {
		return Builtin(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vendor profiles: %w", err)
	}
	return ParseProfiles(data)
}

// ManualProfile builds a single-use profile from a field -> header mapping.
// Every mapped field is required and the header is its only alias.
func ManualProfile(mapping map[Field]string, base *VendorProfile) (VendorProfile, error) {
	p := VendorProfile{
		Name:    ManualProfileName,
		Aliases: make(map[Field][]string, len(mapping)),
	}
	if base != nil {
		p.DateFormats = append([]string(nil), base.DateFormats...)
		p.Timezone = base.Timezone
		p.DirectionCodes = base.DirectionCodes
	}
	for _, f := range Fields {
		h, ok := mapping[f]
		if !ok || h == "" {
			continue
		}
		p.Aliases[f] = []string{h}
		p.RequiredFields = append(p.RequiredFields, f)
	}
	for f := range mapping {
		if !IsKnown(f) {
			return VendorProfile{}, fmt.Errorf("manual mapping: unknown field %q", f)
		}
	}
	if err := p.validate(); err != nil {
		return VendorProfile{}, err
	}
	return p, nil
}

// ParseMapping decodes a {"field": "header"} JSON object as accepted by
// ManualProfile, rejecting unknown field names.
func ParseMapping(raw string) (map[Field]string, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("mapping must be a JSON object of field to header: %v", err)
	}
	out := make(map[Field]string, len(m))
	for k, v := range m {
		f := Field(k)
		if !IsKnown(f) {
			return nil, fmt.Errorf("mapping names unknown field %q", k)
		}
		out[f] = v
	}
	return out, nil
}

func cloneProfile(p VendorProfile) VendorProfile {
	out := p
	out.RequiredFields = append([]Field(nil), p.RequiredFields...)
	out.DateFormats = append([]string(nil), p.DateFormats...)
	out.Aliases = make(map[Field][]string, len(p.Aliases))
	for f, a := range p.Aliases {
		out.Aliases[f] = append([]string(nil), a...)
	}
	out.Weights = make(map[Field]float64, len(p.Weights))
	for f, w := range p.Weights {
		out.Weights[f] = w
	}
	out.DirectionCodes = make(map[string]string, len(p.DirectionCodes))
	for c, d := range p.DirectionCodes {
		out.DirectionCodes[FoldHeader(c)] = d
	}
	return out
}
