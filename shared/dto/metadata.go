package dto

import (
	"roomkey/shared/constant"
	"roomkey/shared/model"
	"roomkey/shared/timezone"
)

// Metadata is the audit block of every response, times rendered in the service timezone.
type Metadata struct {
	CreatedAt  string `json:"created_at"`
	ModifiedAt string `json:"modified_at"`
	CreatedBy  string `json:"created_by"`
	ModifiedBy string `json:"modified_by"`
}

func (m *Metadata) FromModel(metadata model.Metadata) {
	*m = Metadata{
		CreatedAt:  timezone.Format(metadata.CreatedAt, constant.DateFormat),
		ModifiedAt: timezone.Format(metadata.ModifiedAt, constant.DateFormat),
		CreatedBy:  metadata.CreatedBy,
		ModifiedBy: metadata.ModifiedBy,
	}
}
