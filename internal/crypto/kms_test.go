package crypto

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
)

type fakeKMSClient struct {
	keyIDs []string
	err    error
}

func (f *fakeKMSClient) Encrypt(_ context.Context, in *kms.EncryptInput, _ ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.keyIDs = append(f.keyIDs, *in.KeyId)
	// reverse the bytes as a stand-in for real ciphertext
	out := make([]byte, len(in.Plaintext))
	for i, b := range in.Plaintext {
		out[len(out)-1-i] = b
	}
	return &kms.EncryptOutput{CiphertextBlob: out}, nil
}

func (f *fakeKMSClient) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.keyIDs = append(f.keyIDs, *in.KeyId)
	out := make([]byte, len(in.CiphertextBlob))
	for i, b := range in.CiphertextBlob {
		out[len(out)-1-i] = b
	}
	return &kms.DecryptOutput{Plaintext: out}, nil
}

func TestKMSService_RoundTrip(t *testing.T) {
	client := &fakeKMSClient{}
	svc, err := NewKMSService(client, "alias/test")
	if err != nil {
		t.Fatalf("NewKMSService: %v", err)
	}
	ctx := context.Background()

	ciphertext, err := svc.Encrypt(ctx, "refresh-token")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(ciphertext); err != nil {
		t.Errorf("ciphertext is not base64: %v", err)
	}

	plaintext, err := svc.Decrypt(ctx, ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plaintext != "refresh-token" {
		t.Errorf("Decrypt() = %q, want %q", plaintext, "refresh-token")
	}

	for _, id := range client.keyIDs {
		if id != "alias/test" {
			t.Errorf("key id = %q, want alias/test", id)
		}
	}
}

func TestKMSService_Errors(t *testing.T) {
	svc, err := NewKMSService(&fakeKMSClient{err: errors.New("throttled")}, "alias/test")
	if err != nil {
		t.Fatalf("NewKMSService: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.Encrypt(ctx, "x"); err == nil {
		t.Error("expected encrypt error")
	}
	if _, err := svc.Decrypt(ctx, "%%%not-base64"); err == nil {
		t.Error("expected decode error")
	}
}

func TestNewKMSService_Validation(t *testing.T) {
	if _, err := NewKMSService(nil, "alias/test"); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := NewKMSService(&fakeKMSClient{}, ""); err == nil {
		t.Error("expected error for empty key id")
	}
}
