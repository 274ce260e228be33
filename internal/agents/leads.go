package agents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/DealFlow/internal/domain/deal"
)

// LeadSource supplies candidate properties to the scout. Production
// deployments plug in MLS or county-record feeds; the default source is
// a fixed catalog so pipelines behave deterministically in development.
type LeadSource interface {
	Leads(ctx context.Context, exclude map[string]bool, limit int) ([]deal.Deal, error)
}

type staticLeadSource struct {
	catalog []deal.Deal
}

func defaultLeadSource() LeadSource {
	return &staticLeadSource{catalog: sampleCatalog()}
}

func (s *staticLeadSource) Leads(_ context.Context, exclude map[string]bool, limit int) ([]deal.Deal, error) {
	var out []deal.Deal
	for _, d := range s.catalog {
		if len(out) >= limit {
			break
		}
		if exclude[d.Address] {
			continue
		}
		d.ID = uuid.NewString()
		d.Status = deal.StatusDiscovered
		now := time.Now()
		d.CreatedAt = now
		d.UpdatedAt = now
		out = append(out, d)
	}
	return out, nil
}

func sampleCatalog() []deal.Deal {
	return []deal.Deal{
		{Address: "1420 Maple Ave", City: "Columbus", PropertyType: "single_family", SquareFeet: 1650, AskingPrice: 185_000, EstimatedValue: 240_000, EstimatedRehab: 22_000},
		{Address: "88 Fulton St", City: "Cleveland", PropertyType: "duplex", SquareFeet: 2400, AskingPrice: 210_000, EstimatedValue: 265_000, EstimatedRehab: 31_000},
		{Address: "305 Birchwood Dr", City: "Cincinnati", PropertyType: "single_family", SquareFeet: 1400, AskingPrice: 155_000, EstimatedValue: 198_000, EstimatedRehab: 14_500},
		{Address: "712 Sycamore Ct", City: "Dayton", PropertyType: "townhouse", SquareFeet: 1850, AskingPrice: 142_000, EstimatedValue: 176_000, EstimatedRehab: 9_800},
		{Address: "9 Harbor View Rd", City: "Toledo", PropertyType: "single_family", SquareFeet: 2100, AskingPrice: 238_000, EstimatedValue: 259_000, EstimatedRehab: 41_000},
		{Address: "2210 Prairie Ln", City: "Akron", PropertyType: "triplex", SquareFeet: 3300, AskingPrice: 330_000, EstimatedValue: 455_000, EstimatedRehab: 58_000},
		{Address: "47 Granite Way", City: "Columbus", PropertyType: "single_family", SquareFeet: 1250, AskingPrice: 128_000, EstimatedValue: 151_000, EstimatedRehab: 18_700},
		{Address: "660 Lakeshore Blvd", City: "Cleveland", PropertyType: "multi_family", SquareFeet: 5200, AskingPrice: 610_000, EstimatedValue: 790_000, EstimatedRehab: 95_000},
	}
}
