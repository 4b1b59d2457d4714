package importer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mkaneda/lotimport/internal/domain"
	"github.com/mkaneda/lotimport/internal/repository"
	"github.com/mkaneda/lotimport/internal/schema"
)

// validateJob applies field rules and uniqueness rules to every staged row
// of the job. It is exhaustive: a bad row never stops validation of the
// rows after it. Returns the number of invalid rows.
func (s *Service) validateJob(ctx context.Context, job domain.ImportJob, def schema.Definition) (int, error) {
	files, err := s.store.Files().ListByJob(ctx, job.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list job files: %w", err)
	}

	// Keys already seen in this validation pass. The first occurrence of a
	// duplicated key stays valid; subsequent occurrences are flagged.
	seenKeys := make(map[string]struct{})
	invalid := 0

	for _, file := range files {
		rows, err := s.store.Staging().ListByFile(ctx, file.ID)
		if err != nil {
			return 0, err
		}

		for i := range rows {
			row := &rows[i]
			validateFields(def, row)

			if err := s.checkUniqueness(ctx, job, def, file.FileName, row, seenKeys); err != nil {
				return 0, err
			}

			if !row.IsValid {
				invalid++
			}
		}

		if err := s.store.Staging().UpdateValidation(ctx, rows); err != nil {
			return 0, err
		}
	}
	return invalid, nil
}

// validateFields applies the registry's data-driven rule set for the table
// code.
func validateFields(def schema.Definition, row *domain.StagingRow) {
	for _, rule := range def.Rules {
		value, _ := row.Fields.Get(rule.Name)
		value = strings.TrimSpace(value)

		if value == "" {
			if rule.Required {
				row.AddError(rule.Name, domain.ErrCodeRequired, "required field is empty")
			}
			continue
		}

		switch rule.Kind {
		case schema.FieldNumeric:
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				row.AddError(rule.Name, domain.ErrCodeNumeric, fmt.Sprintf("value %q is not numeric", value))
			}
		case schema.FieldDate:
			if _, err := parseProductionDate(value); err != nil {
				row.AddError(rule.Name, domain.ErrCodeDate, fmt.Sprintf("value %q is not a date", value))
			}
		}
	}
}

// checkUniqueness derives the row's business key and applies the
// within-batch and against-storage checks. Rows whose key cannot be derived
// are skipped: the field rules have already flagged the missing inputs.
func (s *Service) checkUniqueness(ctx context.Context, job domain.ImportJob, def schema.Definition, fileName string, row *domain.StagingRow, seenKeys map[string]struct{}) error {
	key, err := deriveKey(def, job.TenantID, fileName, row.Fields)
	if err != nil {
		return nil
	}

	keyStr := key.String()
	if _, dup := seenKeys[keyStr]; dup {
		row.AddError(def.KeyField(), domain.ErrCodeUniqueInFile,
			"duplicate business key within this batch")
		return nil
	}
	seenKeys[keyStr] = struct{}{}

	exists, err := s.keyExists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		row.AddError(def.KeyField(), domain.ErrCodeUniqueInDB,
			"business key already exists in committed records")
	}
	return nil
}

func (s *Service) keyExists(ctx context.Context, key fmt.Stringer) (bool, error) {
	records := s.store.Records()

	var err error
	switch k := key.(type) {
	case domain.LotKey:
		_, err = records.FindLot(ctx, k)
	case domain.WinderKey:
		_, err = records.FindWinder(ctx, k)
	case domain.MoldingKey:
		_, err = records.FindMolding(ctx, k)
	default:
		return false, fmt.Errorf("unhandled business key type %T", key)
	}

	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
