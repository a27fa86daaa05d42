// Package directory manages the company and cluster master data every
// other module references.
package directory

import (
	"fmt"
	"strings"
	"time"

	"github.com/meridian-fin/meridian-fin/internal/shared"
)

// Cluster groups companies under common executive reporting.
type Cluster struct {
	ID        int64
	Name      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Company is one reporting subsidiary. Companies are soft-deleted
// only; a hard delete is never offered because reports and facts
// reference them forever.
type Company struct {
	ID               int64
	ClusterID        int64
	Name             string
	FiscalStartMonth int
	Currency         string
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// CreateCompanyInput captures company creation fields.
type CreateCompanyInput struct {
	ClusterID        int64
	Name             string
	FiscalStartMonth int
	Currency         string
	ActorID          int64
}

// Validate normalises and checks the input. A zero fiscal start
// defaults to January.
func (in *CreateCompanyInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.ClusterID == 0 {
		return fmt.Errorf("directory: cluster required: %w", shared.ErrValidation)
	}
	if in.Name == "" {
		return fmt.Errorf("directory: company name required: %w", shared.ErrValidation)
	}
	if in.FiscalStartMonth == 0 {
		in.FiscalStartMonth = 1
	}
	if in.FiscalStartMonth < 1 || in.FiscalStartMonth > 12 {
		return fmt.Errorf("directory: fiscal start month %d out of range: %w", in.FiscalStartMonth, shared.ErrValidation)
	}
	if len(in.Currency) != 3 {
		return fmt.Errorf("directory: currency must be a 3-letter code: %w", shared.ErrValidation)
	}
	if in.ActorID == 0 {
		return fmt.Errorf("directory: actor required: %w", shared.ErrValidation)
	}
	return nil
}

// UpdateCompanyInput captures mutable company fields.
type UpdateCompanyInput struct {
	CompanyID        int64
	Name             string
	FiscalStartMonth int
	Currency         string
	ActorID          int64
}

// Validate normalises and checks the input.
func (in *UpdateCompanyInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.CompanyID == 0 {
		return fmt.Errorf("directory: company required: %w", shared.ErrValidation)
	}
	if in.Name == "" {
		return fmt.Errorf("directory: company name required: %w", shared.ErrValidation)
	}
	if in.FiscalStartMonth < 1 || in.FiscalStartMonth > 12 {
		return fmt.Errorf("directory: fiscal start month %d out of range: %w", in.FiscalStartMonth, shared.ErrValidation)
	}
	if len(in.Currency) != 3 {
		return fmt.Errorf("directory: currency must be a 3-letter code: %w", shared.ErrValidation)
	}
	if in.ActorID == 0 {
		return fmt.Errorf("directory: actor required: %w", shared.ErrValidation)
	}
	return nil
}
