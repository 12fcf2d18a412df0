package tsigkey

import (
	"strings"
	"testing"
)

func TestNormalizeAlgorithmRejectsMD5AndSHA1(t *testing.T) {
	for _, alg := range []string{"hmac-md5", "hmac-sha1", "hmac-sha1."} {
		if _, err := NormalizeAlgorithm(alg); err == nil {
			t.Fatalf("expected %q to be rejected", alg)
		}
	}
}

func TestNormalizeAlgorithmAcceptsSHA2Family(t *testing.T) {
	for _, alg := range []string{"hmac-sha224", "HMAC-SHA256", "hmac-sha384.", "hmac-sha512"} {
		if _, err := NormalizeAlgorithm(alg); err != nil {
			t.Fatalf("%q: %v", alg, err)
		}
	}
}

func TestLoadFileParsesAndSkipsCommentsAndBlankLines(t *testing.T) {
	input := `
# a comment
mykey:hmac-sha256:c2VjcmV0

  othkey : hmac-sha512 : c2VjcmV0Mg==
`
	keys, err := LoadFile(strings.NewReader(input))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	if keys[0].Name != "mykey." {
		t.Fatalf("name = %q", keys[0].Name)
	}
}

func TestLoadFileRejectsMalformedLine(t *testing.T) {
	_, err := LoadFile(strings.NewReader("not-enough-fields"))
	if err == nil {
		t.Fatalf("expected an error for a malformed line")
	}
}

func TestSelectFindsByName(t *testing.T) {
	keys, _ := LoadFile(strings.NewReader("mykey:hmac-sha256:c2VjcmV0\n"))
	k, err := Select(keys, "mykey")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if k.Name != "mykey." {
		t.Fatalf("name = %q", k.Name)
	}

	if _, err := Select(keys, "nope"); err == nil {
		t.Fatalf("expected an error for an unknown key name")
	}
}
