//nolint:lll // readablity
package traefik

import "testing"

func TestFindCertEntry(t *testing.T) {
	acme := `{"myresolver":{"Certificates":[
		{"domain":{"main":"fueltrace.example.com"}, "certificate": "Y2VydDE=", "key": "a2V5MQ=="},
		{"domain":{"main":"*.example.com"}, "certificate": "Y2VydDI=", "key": "a2V5Mg=="}]}}`

	type args struct {
		jsonData string
		domain   string
	}
	tests := []struct {
		name    string
		args    args
		cert    string
		key     string
		wantErr bool
	}{
		{
			name: "exact domain",
			args: args{jsonData: acme, domain: "fueltrace.example.com"},
			cert: "Y2VydDE=",
			key:  "a2V5MQ==",
		},
		{
			name: "wildcard domain",
			args: args{jsonData: acme, domain: "*.example.com"},
			cert: "Y2VydDI=",
			key:  "a2V5Mg==",
		},
		{
			name:    "domain not found",
			args:    args{jsonData: acme, domain: "other.com"},
			wantErr: true,
		},
		{
			name:    "empty json",
			args:    args{jsonData: `{}`, domain: "other.com"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := findCertEntry(tt.args.jsonData, tt.args.domain)
			if (err != nil) != tt.wantErr {
				t.Errorf("findCertEntry() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if got.Certificate != tt.cert {
				t.Errorf("findCertEntry() cert = %v, want %v", got.Certificate, tt.cert)
			}
			if got.Key != tt.key {
				t.Errorf("findCertEntry() key = %v, want %v", got.Key, tt.key)
			}
		})
	}
}
