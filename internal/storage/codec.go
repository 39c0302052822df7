package storage

import (
	"encoding/json"
	"errors"

	"github.com/bluehope/mace/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeVerification(r model.VerificationRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeVerification(data []byte) (model.VerificationRecord, error) {
	var record model.VerificationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.VerificationRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.VerificationRecord{}, err
	}
	return record, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
