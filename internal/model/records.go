package model

import (
	"encoding/json"
	"fmt"
)

// SnapshotRecords flattens a snapshot into one record per field, sorted by field name.
func SnapshotRecords(s Snapshot) ([]FieldRecord, error) {
	records := make([]FieldRecord, 0, len(s.Fields))
	for _, name := range s.FieldNames() {
		field := s.Fields[name]
		record := FieldRecord{
			ChainID:     s.ChainID,
			Name:        s.Name,
			Address:     s.Address,
			BlockNumber: s.BlockNumber,
			Field:       name,
		}
		if field.Error != nil {
			record.ErrorKind = string(field.Error.Kind)
			record.ErrorMessage = field.Error.Message
		} else if field.Value != nil {
			raw, err := json.Marshal(field.Value)
			if err != nil {
				return nil, fmt.Errorf("marshal field %s: %w", name, err)
			}
			record.Value = string(raw)
		}
		records = append(records, record)
	}
	return records, nil
}

// SnapshotFromRecords rebuilds a snapshot from records of a single
// (chain, address, block) key.
func SnapshotFromRecords(records []FieldRecord) (Snapshot, error) {
	if len(records) == 0 {
		return Snapshot{}, fmt.Errorf("no records")
	}
	first := records[0]
	s := Snapshot{
		ChainID:     first.ChainID,
		Name:        first.Name,
		Address:     first.Address,
		BlockNumber: first.BlockNumber,
		Fields:      make(map[string]FieldResult, len(records)),
	}
	for _, record := range records {
		if record.ChainID != s.ChainID || record.Address != s.Address || record.BlockNumber != s.BlockNumber {
			return Snapshot{}, fmt.Errorf("record %s belongs to a different snapshot", record.Field)
		}
		result := FieldResult{Field: record.Field}
		if record.ErrorKind != "" {
			result.Error = &FieldError{Kind: ErrorKind(record.ErrorKind), Message: record.ErrorMessage}
		} else if record.Value != "" {
			var value Value
			if err := json.Unmarshal([]byte(record.Value), &value); err != nil {
				return Snapshot{}, fmt.Errorf("parse field %s: %w", record.Field, err)
			}
			result.Value = value
		}
		s.Fields[record.Field] = result
	}
	return s, nil
}
