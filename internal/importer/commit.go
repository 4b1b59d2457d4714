package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mkaneda/lotimport/internal/domain"
	"github.com/mkaneda/lotimport/internal/repository"
	"github.com/mkaneda/lotimport/internal/schema"

	"github.com/google/uuid"
)

// commitJob moves every valid staged row of the job into the target record
// family. All writes happen in one transaction: a failure anywhere leaves
// the target tables exactly as they were before this job's commit.
func (s *Service) commitJob(ctx context.Context, job domain.ImportJob, def schema.Definition) error {
	return s.store.InTx(ctx, func(tx repository.Store) error {
		files, err := tx.Files().ListByJob(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("failed to list job files: %w", err)
		}

		for _, file := range files {
			rows, err := tx.Staging().ListValidByFile(ctx, file.ID)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				continue
			}
			if err := commitFile(ctx, tx, job, def, file, rows); err != nil {
				return fmt.Errorf("file %s: %w", file.FileName, err)
			}
		}
		return nil
	})
}

type keyGroup struct {
	key      fmt.Stringer
	payloads []domain.RowPayload
}

func commitFile(ctx context.Context, tx repository.Store, job domain.ImportJob, def schema.Definition, file domain.ImportFile, rows []domain.StagingRow) error {
	lotRaw := domain.LotFromFilename(file.FileName)

	// Group the file's valid rows by business key, preserving first-seen
	// order.
	groups := make(map[string]*keyGroup)
	var order []string
	for _, row := range rows {
		key, err := deriveKey(def, job.TenantID, file.FileName, row.Fields)
		if err != nil {
			return fmt.Errorf("row %d: %w", row.RowIndex, err)
		}
		keyStr := key.String()
		group, ok := groups[keyStr]
		if !ok {
			group = &keyGroup{key: key}
			groups[keyStr] = group
			order = append(order, keyStr)
		}
		group.payloads = append(group.payloads, domain.RowPayload{
			Hash:   row.Fields.Hash(),
			Fields: row.Fields,
		})
	}

	records := tx.Records()
	now := time.Now()

	for _, keyStr := range order {
		group := groups[keyStr]
		// De-duplicating by content hash keeps a re-issued commit from
		// growing the extras document.
		payloads := domain.MergePayloads(group.payloads)

		switch key := group.key.(type) {
		case domain.LotKey:
			rec, err := records.FindLot(ctx, key)
			if errors.Is(err, repository.ErrNotFound) {
				rec = domain.ProductLot{
					ID:            uuid.New(),
					TenantID:      job.TenantID,
					LotNumber:     lotRaw,
					LotNorm:       key.LotNorm,
					SchemaVersion: def.Version,
					CreatedAt:     now,
				}
			} else if err != nil {
				return err
			}
			rec.Extras = payloads
			rec.UpdatedAt = now
			if err := records.SaveLot(ctx, rec); err != nil {
				return err
			}

		case domain.WinderKey:
			rec, err := records.FindWinder(ctx, key)
			if errors.Is(err, repository.ErrNotFound) {
				rec = domain.WinderRecord{
					ID:            uuid.New(),
					TenantID:      job.TenantID,
					LotNumber:     lotRaw,
					LotNorm:       key.LotNorm,
					WinderNo:      key.WinderNo,
					SchemaVersion: def.Version,
					CreatedAt:     now,
				}
			} else if err != nil {
				return err
			}
			rec.Extras = payloads
			rec.UpdatedAt = now
			if err := records.SaveWinder(ctx, rec); err != nil {
				return err
			}

		case domain.MoldingKey:
			rec, err := records.FindMolding(ctx, key)
			if errors.Is(err, repository.ErrNotFound) {
				rec = domain.MoldingRecord{
					ID:            uuid.New(),
					TenantID:      job.TenantID,
					LotNumber:     lotRaw,
					LotNorm:       key.LotNorm,
					ProducedOn:    key.ProducedOn,
					MachineID:     key.MachineID,
					MoldID:        key.MoldID,
					SchemaVersion: def.Version,
					CreatedAt:     now,
				}
			} else if err != nil {
				return err
			}
			rec.Extras = payloads
			rec.ProductCode = domain.DeriveProductCode(key.MachineID, key.MoldID)
			rec.UpdatedAt = now
			if err := records.SaveMolding(ctx, rec); err != nil {
				return err
			}

		default:
			return fmt.Errorf("unhandled business key type %T", group.key)
		}
	}
	return nil
}
