package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/AARTI756/bank/domain"
)

func TestRequestRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}

	req := &Request{
		Operation: OpDeposit,
		Fields:    map[string]any{"account_no": int64(1001), "amount": int64(200)},
	}

	if err := WriteFrame(buf, req); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	got, err := ReadRequest(buf)
	if err != nil {
		t.Fatalf("read request: %v", err)
	}

	if got.Operation != OpDeposit {
		t.Errorf("operation = %q, want %q", got.Operation, OpDeposit)
	}

	accountNo, err := got.Int64Field("account_no")
	if err != nil {
		t.Fatalf("account_no: %v", err)
	}
	if accountNo != 1001 {
		t.Errorf("account_no = %d, want 1001", accountNo)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}

	if err := WriteFrame(buf, OK(map[string]any{"new_balance": int64(1200)})); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	resp, err := ReadResponse(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	if !resp.IsOK() {
		t.Fatalf("status = %q, want ok", resp.Status)
	}
	if resp.Err() != nil {
		t.Errorf("Err() = %v, want nil", resp.Err())
	}
}

func TestErrorResponseCarriesKind(t *testing.T) {
	buf := &bytes.Buffer{}

	src := &domain.InsufficientFundsError{AccountNo: 1001, Requested: 1500, Available: 1000}
	if err := WriteFrame(buf, Error(src)); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	resp, err := ReadResponse(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	if resp.IsOK() {
		t.Fatal("expected error response")
	}

	var remote *RemoteError
	if !errors.As(resp.Err(), &remote) {
		t.Fatalf("Err() = %T, want *RemoteError", resp.Err())
	}
	if remote.Kind != domain.KindInsufficientFunds {
		t.Errorf("kind = %q, want %q", remote.Kind, domain.KindInsufficientFunds)
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	buf := &bytes.Buffer{}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)
	buf.Write(header[:])

	_, err := ReadRequest(buf)
	var protocol *domain.ProtocolError
	if !errors.As(err, &protocol) {
		t.Fatalf("err = %v, want protocol violation", err)
	}
}

func TestMalformedBodyRejected(t *testing.T) {
	buf := &bytes.Buffer{}

	body := []byte("not json")
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	buf.Write(header[:])
	buf.Write(body)

	_, err := ReadRequest(buf)
	var protocol *domain.ProtocolError
	if !errors.As(err, &protocol) {
		t.Fatalf("err = %v, want protocol violation", err)
	}
}

func TestRequestWithoutOperationRejected(t *testing.T) {
	buf := &bytes.Buffer{}

	if err := WriteFrame(buf, &Request{Fields: map[string]any{}}); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	_, err := ReadRequest(buf)
	var protocol *domain.ProtocolError
	if !errors.As(err, &protocol) {
		t.Fatalf("err = %v, want protocol violation", err)
	}
}

func TestInt64FieldRejectsFractions(t *testing.T) {
	req := &Request{Fields: map[string]any{"amount": 10.5}}

	if _, err := req.Int64Field("amount"); err == nil {
		t.Fatal("expected error for fractional amount")
	}
}
