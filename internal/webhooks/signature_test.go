package webhooks

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"slot.committed"}`)
	sig := SignHMAC("s3cret", body)
	if !VerifyHMAC("s3cret", body, sig) {
		t.Fatal("valid signature rejected")
	}
	if VerifyHMAC("wrong", body, sig) {
		t.Fatal("signature verified under the wrong secret")
	}
	if VerifyHMAC("s3cret", []byte(`tampered`), sig) {
		t.Fatal("signature verified for a tampered body")
	}
	if VerifyHMAC("s3cret", body, "zz-not-hex") {
		t.Fatal("non-hex signature accepted")
	}
}
