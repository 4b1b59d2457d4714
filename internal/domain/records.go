package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RowPayload is one source row carried in a record's extras document. The
// hash lets repeated commits of the same staged rows collapse to a single
// entry instead of growing the document.
type RowPayload struct {
	Hash   string    `json:"hash"`
	Fields RowFields `json:"fields"`
}

// MergePayloads combines payload sets, dropping entries whose content hash
// is already present. Order of first appearance is preserved.
func MergePayloads(sets ...[]RowPayload) []RowPayload {
	seen := make(map[string]struct{})
	var merged []RowPayload
	for _, set := range sets {
		for _, p := range set {
			if _, ok := seen[p.Hash]; ok {
				continue
			}
			seen[p.Hash] = struct{}{}
			merged = append(merged, p)
		}
	}
	return merged
}

// LotKey is the business key of family P1: unique per tenant and
// normalized lot.
type LotKey struct {
	TenantID uuid.UUID
	LotNorm  string
}

func (k LotKey) String() string {
	return fmt.Sprintf("P1/%s/%s", k.TenantID, k.LotNorm)
}

// ProductLot is the family P1 target record.
type ProductLot struct {
	ID            uuid.UUID    `json:"id"`
	TenantID      uuid.UUID    `json:"tenant_id"`
	LotNumber     string       `json:"lot_number"`
	LotNorm       string       `json:"lot_norm"`
	SchemaVersion string       `json:"schema_version"`
	Extras        []RowPayload `json:"extras"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (r ProductLot) Key() LotKey {
	return LotKey{TenantID: r.TenantID, LotNorm: r.LotNorm}
}

// WinderKey is the business key of family P2: unique per tenant, normalized
// lot and winder number.
type WinderKey struct {
	TenantID uuid.UUID
	LotNorm  string
	WinderNo int
}

func (k WinderKey) String() string {
	return fmt.Sprintf("P2/%s/%s/%d", k.TenantID, k.LotNorm, k.WinderNo)
}

// WinderRecord is the family P2 target record.
type WinderRecord struct {
	ID            uuid.UUID    `json:"id"`
	TenantID      uuid.UUID    `json:"tenant_id"`
	LotNumber     string       `json:"lot_number"`
	LotNorm       string       `json:"lot_norm"`
	WinderNo      int          `json:"winder_no"`
	SchemaVersion string       `json:"schema_version"`
	Extras        []RowPayload `json:"extras"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (r WinderRecord) Key() WinderKey {
	return WinderKey{TenantID: r.TenantID, LotNorm: r.LotNorm, WinderNo: r.WinderNo}
}

// MoldingKey is the business key of family P3: unique per tenant,
// production date, machine, mold and normalized lot.
type MoldingKey struct {
	TenantID   uuid.UUID
	ProducedOn time.Time // date precision
	MachineID  string
	MoldID     string
	LotNorm    string
}

func (k MoldingKey) String() string {
	return fmt.Sprintf("P3/%s/%s/%s/%s/%s",
		k.TenantID, k.ProducedOn.Format("2006-01-02"), k.MachineID, k.MoldID, k.LotNorm)
}

// MoldingRecord is the family P3 target record. ProductCode is derived from
// machine and mold at commit time and refreshed on every update.
type MoldingRecord struct {
	ID            uuid.UUID    `json:"id"`
	TenantID      uuid.UUID    `json:"tenant_id"`
	LotNumber     string       `json:"lot_number"`
	LotNorm       string       `json:"lot_norm"`
	ProducedOn    time.Time    `json:"produced_on"`
	MachineID     string       `json:"machine_id"`
	MoldID        string       `json:"mold_id"`
	ProductCode   string       `json:"product_code"`
	SchemaVersion string       `json:"schema_version"`
	Extras        []RowPayload `json:"extras"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (r MoldingRecord) Key() MoldingKey {
	return MoldingKey{
		TenantID:   r.TenantID,
		ProducedOn: r.ProducedOn,
		MachineID:  r.MachineID,
		MoldID:     r.MoldID,
		LotNorm:    r.LotNorm,
	}
}

// DeriveProductCode builds the P3 product identifier from its machine and
// mold.
func DeriveProductCode(machineID, moldID string) string {
	return machineID + "-" + moldID
}
