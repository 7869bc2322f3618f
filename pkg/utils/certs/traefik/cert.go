package traefik

import (
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// certEntry is the shape of a certificate entry in traefik's acme.json.
type certEntry struct {
	Certificate string `json:"certificate"`
	Key         string `json:"key"`
}

// GetCertFromTraefik extracts the certificate for domain from a traefik
// acme.json file.
func GetCertFromTraefik(file, domain string) (tls.Certificate, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return tls.Certificate{}, err
	}
	return ParseCertificate(string(data), domain)
}

// ParseCertificate picks the certificate for domain out of acme.json
// content. Cert and key are stored base64 encoded there.
func ParseCertificate(jsonData, domain string) (tls.Certificate, error) {
	entry, err := findCertEntry(jsonData, domain)
	if err != nil {
		return tls.Certificate{}, err
	}
	certPEM, err := base64.StdEncoding.DecodeString(entry.Certificate)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM, err := base64.StdEncoding.DecodeString(entry.Key)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.X509KeyPair(certPEM, keyPEM)
}

// the resolver name in acme.json is unknown, so search all of them
func findCertEntry(jsonData, domain string) (*certEntry, error) {
	obj, err := oj.ParseString(jsonData)
	if err != nil {
		return nil, err
	}
	path, err := jp.ParseString(
		fmt.Sprintf(`$..Certificates[?(@.domain.main == %q)]`, domain))
	if err != nil {
		return nil, err
	}
	res := path.Get(obj)
	if len(res) == 0 {
		return nil, fmt.Errorf("no certificate for domain %s", domain)
	}
	entry := certEntry{}
	if err := oj.Unmarshal([]byte(oj.JSON(res[0])), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
