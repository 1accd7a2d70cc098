package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
)

func EncodePayload(t JobType, payload RepairPayload) ([]byte, error) {
	if err := ValidatePayload(t, payload); err != nil {
		return nil, err
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return b, nil
}

// DecodePayload unmarshals a stored payload for job type t.
func DecodePayload(t JobType, raw []byte) (RepairPayload, error) {
	if !t.IsValid() {
		return RepairPayload{}, ErrInvalidJobType
	}
	if len(raw) == 0 {
		return RepairPayload{}, ErrInvalidJobPayload
	}

	var p RepairPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return RepairPayload{}, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	if err := ValidatePayload(t, p); err != nil {
		return RepairPayload{}, err
	}
	return p, nil
}

func ValidatePayload(t JobType, p RepairPayload) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}
	if strings.TrimSpace(p.TargetID) == "" {
		return ErrInvalidJobPayload
	}
	return nil
}
