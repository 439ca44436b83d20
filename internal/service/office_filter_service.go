package service

import (
	"context"
	"sort"

	"github.com/spec-kit/facility-desk/internal/domain"
	"github.com/spec-kit/facility-desk/internal/repository"
	apperrors "github.com/spec-kit/facility-desk/pkg/util/errorutil"
)

// FilterSelection is the region/city/office choice made by a client.
// Empty strings and a nil OfficeID mean unset.
type FilterSelection struct {
	Region   string
	City     string
	OfficeID *int64
}

// FilterOptions are the choices valid under a selection.
type FilterOptions struct {
	Regions   []string
	Cities    []string
	Offices   []domain.Office
	Selection FilterSelection
}

// OfficeFilterService serves the cascading office filters.
type OfficeFilterService struct {
	offices repository.OfficeRepository
}

// NewOfficeFilterService constructs the service.
func NewOfficeFilterService(offices repository.OfficeRepository) *OfficeFilterService {
	return &OfficeFilterService{offices: offices}
}

// Options returns every region, city and office.
func (s *OfficeFilterService) Options(ctx context.Context) (*FilterOptions, error) {
	return s.Resolve(ctx, FilterSelection{})
}

// Resolve narrows the options under sel and clears any part of sel that is
// no longer valid.
func (s *OfficeFilterService) Resolve(ctx context.Context, sel FilterSelection) (*FilterOptions, error) {
	offices, err := s.offices.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	resolved := ResolveCascade(offices, sel)
	return &resolved, nil
}

// ResolveCascade applies region -> city -> office narrowing. A city outside
// the chosen region, or an office outside the chosen region and city, is
// reset to unset rather than kept.
func ResolveCascade(offices []domain.Office, sel FilterSelection) FilterOptions {
	out := FilterOptions{Selection: sel}

	regions := map[string]struct{}{}
	for _, o := range offices {
		if o.Region != "" {
			regions[o.Region] = struct{}{}
		}
	}
	out.Regions = sortedKeys(regions)
	if _, ok := regions[out.Selection.Region]; !ok {
		out.Selection.Region = ""
	}

	cities := map[string]struct{}{}
	for _, o := range offices {
		if o.City == "" {
			continue
		}
		if out.Selection.Region != "" && o.Region != out.Selection.Region {
			continue
		}
		cities[o.City] = struct{}{}
	}
	out.Cities = sortedKeys(cities)
	if _, ok := cities[out.Selection.City]; !ok {
		out.Selection.City = ""
	}

	out.Offices = []domain.Office{}
	officeValid := false
	for _, o := range offices {
		if out.Selection.Region != "" && o.Region != out.Selection.Region {
			continue
		}
		if out.Selection.City != "" && o.City != out.Selection.City {
			continue
		}
		out.Offices = append(out.Offices, o)
		if out.Selection.OfficeID != nil && *out.Selection.OfficeID == o.ID {
			officeValid = true
		}
	}
	if !officeValid {
		out.Selection.OfficeID = nil
	}
	sort.SliceStable(out.Offices, func(i, j int) bool {
		if out.Offices[i].Name != out.Offices[j].Name {
			return out.Offices[i].Name < out.Offices[j].Name
		}
		return out.Offices[i].ID < out.Offices[j].ID
	})
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
