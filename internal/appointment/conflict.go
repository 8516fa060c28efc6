package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Dimension string

const (
	DimensionProvider Dimension = "provider"
	DimensionPatient  Dimension = "patient"
	DimensionFacility Dimension = "facility"
)

// Dimensions lists every axis in reporting order.
var Dimensions = []Dimension{DimensionProvider, DimensionPatient, DimensionFacility}

// Candidate is a proposed booking to validate against existing ones.
type Candidate struct {
	ProviderID uuid.UUID
	PatientID  uuid.UUID
	FacilityID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
}

func (a Appointment) Candidate() Candidate {
	return Candidate{
		ProviderID: a.ProviderID,
		PatientID:  a.PatientID,
		FacilityID: a.FacilityID,
		StartTime:  a.StartTime,
		EndTime:    a.EndTime,
	}
}

type ConflictSummary struct {
	ID          uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	Counterpart string
}

// ConflictResult groups clashing appointments by dimension. Empty dimensions are absent.
type ConflictResult map[Dimension][]ConflictSummary

func (r ConflictResult) HasConflicts() bool {
	for _, group := range r {
		if len(group) > 0 {
			return true
		}
	}
	return false
}

// Dimensions returns the dimensions with conflicts in reporting order.
func (r ConflictResult) Dimensions() []Dimension {
	var out []Dimension
	for _, d := range Dimensions {
		if len(r[d]) > 0 {
			out = append(out, d)
		}
	}
	return out
}

// Overlaps is the half-open interval test: [aStart,aEnd) and [bStart,bEnd) share an instant.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// OverlapFinder returns active appointments overlapping the candidate window that
// share at least one participant with it. Implementations may return a superset.
type OverlapFinder interface {
	FindOverlapping(ctx context.Context, c Candidate, excludeID *uuid.UUID) ([]Appointment, error)
}

type Detector struct {
	finder OverlapFinder
}

func NewDetector(finder OverlapFinder) *Detector {
	return &Detector{finder: finder}
}

// Check never caches. Callers that persist the candidate must run it inside the
// same transaction as the write.
func (d *Detector) Check(ctx context.Context, c Candidate, excludeID *uuid.UUID) (ConflictResult, error) {
	existing, err := d.finder.FindOverlapping(ctx, c, excludeID)
	if err != nil {
		return nil, err
	}

	result := ConflictResult{}
	for _, a := range existing {
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		if !a.IsActive() || !Overlaps(c.StartTime, c.EndTime, a.StartTime, a.EndTime) {
			continue
		}

		summary := ConflictSummary{ID: a.ID, StartTime: a.StartTime, EndTime: a.EndTime}
		if a.ProviderID == c.ProviderID {
			s := summary
			s.Counterpart = a.PatientName
			result[DimensionProvider] = append(result[DimensionProvider], s)
		}
		if a.PatientID == c.PatientID {
			s := summary
			s.Counterpart = a.ProviderName
			result[DimensionPatient] = append(result[DimensionPatient], s)
		}
		if a.FacilityID == c.FacilityID {
			s := summary
			s.Counterpart = a.ProviderName
			result[DimensionFacility] = append(result[DimensionFacility], s)
		}
	}
	return result, nil
}
