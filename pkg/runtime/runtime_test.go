package runtime

import (
	"crypto/x509"
	"testing"
)

func TestUniqueStrings(t *testing.T) {
	got := uniqueStrings([]string{"localhost", " localhost", "", "example.org"})
	if len(got) != 2 {
		t.Fatalf("unique=%v, want 2 entries", got)
	}
	if got[0] != "localhost" || got[1] != "example.org" {
		t.Fatalf("unique=%v, want [localhost example.org]", got)
	}
}

func TestGenerateSelfSignedCert(t *testing.T) {
	cert, err := generateSelfSignedCert("gateway.local")
	if err != nil {
		t.Fatalf("generateSelfSignedCert error=%v", err)
	}
	if len(cert.Certificate) == 0 {
		t.Fatal("certificate chain is empty")
	}
	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate error=%v", err)
	}
	found := false
	for _, name := range parsed.DNSNames {
		if name == "gateway.local" {
			found = true
		}
	}
	if !found {
		t.Fatalf("dns names=%v, want gateway.local included", parsed.DNSNames)
	}
	if parsed.Subject.CommonName != "micrelay-local" {
		t.Fatalf("common name=%q, want micrelay-local", parsed.Subject.CommonName)
	}
}
