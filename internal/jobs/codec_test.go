package jobs

import (
	"errors"
	"testing"
)

func TestEncodeDecode_RepairDeletePlace(t *testing.T) {
	payload := RepairPayload{
		TargetID:    "place-123",
		RequestedBy: "user-456",
	}

	b, err := EncodePayload(JobRepairDeletePlace, payload)
	if err != nil {
		t.Fatalf("EncodePayload error: %v", err)
	}

	decoded, err := DecodePayload(JobRepairDeletePlace, b)
	if err != nil {
		t.Fatalf("DecodePayload error: %v", err)
	}

	if decoded.TargetID != payload.TargetID {
		t.Fatalf("expected targetId %s, got %s", payload.TargetID, decoded.TargetID)
	}
}

func TestEncodePayload_UnknownType(t *testing.T) {
	_, err := EncodePayload(JobType("publish_event"), RepairPayload{TargetID: "x"})
	if !errors.Is(err, ErrInvalidJobType) {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}
}

func TestValidatePayload_RequiredTarget(t *testing.T) {
	err := ValidatePayload(JobRepairDeleteUser, RepairPayload{TargetID: "  "})
	if !errors.Is(err, ErrInvalidJobPayload) {
		t.Fatalf("expected ErrInvalidJobPayload, got %v", err)
	}
}

func TestDecodePayload_BadJSON(t *testing.T) {
	_, err := DecodePayload(JobRepairDeleteExperience, []byte("{"))
	if !errors.Is(err, ErrInvalidJobPayload) {
		t.Fatalf("expected ErrInvalidJobPayload, got %v", err)
	}
}

func TestIdempotencyKey(t *testing.T) {
	if got := IdempotencyKey(JobRepairDeleteUser, "u1"); got != "repair_delete_user:u1" {
		t.Fatalf("unexpected key %q", got)
	}
}
